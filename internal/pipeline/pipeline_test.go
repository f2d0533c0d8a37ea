package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medstream-labs/export-analytics-cli/internal/aggregator"
	"github.com/medstream-labs/export-analytics-cli/internal/config"
	"github.com/medstream-labs/export-analytics-cli/internal/consumer"
	"github.com/medstream-labs/export-analytics-cli/internal/export"
)

var (
	downloadA = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	downloadB = uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	downloadC = uuid.MustParse("9c858901-8a57-4791-81fe-4c455b099bc9")
)

// MockExportClient is a mock implementation of export.Client
type MockExportClient struct {
	mock.Mock
}

func (m *MockExportClient) Downloads(ctx context.Context, exportID string) ([]uuid.UUID, error) {
	args := m.Called(ctx, exportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockExportClient) OpenDownload(ctx context.Context, exportID string, downloadID uuid.UUID) (io.ReadCloser, error) {
	args := m.Called(ctx, exportID, downloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// closeTracker records whether a download stream was closed.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func csvBody(rows ...string) *closeTracker {
	lines := append([]string{"patient_id,event_time,event_type,value"}, rows...)
	return &closeTracker{Reader: strings.NewReader(strings.Join(lines, "\n") + "\n")}
}

func newTestPipeline(t *testing.T, client export.Client, onMalformed string) *Pipeline {
	t.Helper()
	cfg := &config.Config{}
	cfg.Pipeline.OnMalformed = onMalformed
	p, err := NewPipeline(cfg, client, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewPipeline_UnknownPolicy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.OnMalformed = "shrug"

	p, err := NewPipeline(cfg, new(MockExportClient), zap.NewNop())

	assert.Nil(t, p)
	assert.Error(t, err)
}

func TestPipeline_Run_SingleFile(t *testing.T) {
	mockClient := new(MockExportClient)
	body := csvBody(
		"patient_1,2026-01-15T10:00:00Z,heart_rate,70",
		"patient_1,2026-01-15T10:01:00Z,heart_rate,72",
		"patient_2,2026-01-15T10:00:30Z,spo2,98",
	)

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	assert.Equal(t, map[string]map[string]uint64{
		"patient_1": {"heart_rate": 2},
		"patient_2": {"spo2": 1},
	}, report.Patients)
	assert.Equal(t, map[string]uint64{"heart_rate": 2, "spo2": 1}, report.Totals)
	assert.Nil(t, report.MalformedRows)
	assert.True(t, body.closed)
	mockClient.AssertExpectations(t)
}

func TestPipeline_Run_MergesAcrossFiles(t *testing.T) {
	mockClient := new(MockExportClient)
	first := csvBody(
		"patient_1,t1,heart_rate,70",
		"patient_1,t2,heart_rate,71",
		"patient_1,t3,spo2,98",
	)
	second := csvBody(
		"patient_1,t4,heart_rate,72",
		"patient_2,t5,spo2,97",
	)

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA, downloadB}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(first, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadB).Return(second, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	assert.Equal(t, uint64(3), report.Patients["patient_1"]["heart_rate"])
	assert.Equal(t, uint64(1), report.Patients["patient_1"]["spo2"])
	assert.Equal(t, uint64(1), report.Patients["patient_2"]["spo2"])
	assert.Equal(t, map[string]uint64{"heart_rate": 3, "spo2": 2}, report.Totals)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestPipeline_Run_FileOrderDoesNotChangeReport(t *testing.T) {
	rowsA := []string{
		"patient_1,t1,heart_rate,70",
		"patient_2,t2,bp_sys,120",
	}
	rowsB := []string{
		"patient_1,t3,spo2,98",
		"patient_2,t4,bp_sys,121",
		"patient_3,t5,heart_rate,64",
	}

	run := func(firstRows, secondRows []string) *aggregator.Report {
		mockClient := new(MockExportClient)
		mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA, downloadB}, nil)
		mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(csvBody(firstRows...), nil)
		mockClient.On("OpenDownload", mock.Anything, "demo", downloadB).Return(csvBody(secondRows...), nil)

		p := newTestPipeline(t, mockClient, "fail")
		report, err := p.Run(context.Background(), "demo")
		require.NoError(t, err)
		return report
	}

	forward := run(rowsA, rowsB)
	reversed := run(rowsB, rowsA)

	assert.Equal(t, forward.Patients, reversed.Patients)
	assert.Equal(t, forward.Totals, reversed.Totals)
}

func TestPipeline_Run_EmptyExport(t *testing.T) {
	mockClient := new(MockExportClient)
	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{}, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	assert.NotNil(t, report.Patients)
	assert.NotNil(t, report.Totals)
	assert.Empty(t, report.Patients)
	assert.Empty(t, report.Totals)
	mockClient.AssertNotCalled(t, "OpenDownload", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_EmptyFile(t *testing.T) {
	mockClient := new(MockExportClient)
	body := &closeTracker{Reader: strings.NewReader("")}

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	assert.Empty(t, report.Patients)
	assert.True(t, body.closed)
}

func TestPipeline_Run_DiscoveryFailure(t *testing.T) {
	mockClient := new(MockExportClient)
	mockClient.On("Downloads", mock.Anything, "ghost").Return(nil, &export.DiscoveryError{
		ExportID: "ghost",
		Reason:   "unknown_export (status 404)",
	})

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "ghost")

	assert.Nil(t, report)
	var discoveryErr *export.DiscoveryError
	assert.ErrorAs(t, err, &discoveryErr)
	mockClient.AssertNotCalled(t, "OpenDownload", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_OpenFailureAbortsRun(t *testing.T) {
	mockClient := new(MockExportClient)
	first := csvBody("patient_1,t1,heart_rate,70")

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA, downloadB}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(first, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadB).Return(nil, &export.TransportError{
		ExportID:   "demo",
		DownloadID: downloadB,
		Reason:     "unexpected status 503",
	})

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.Nil(t, report)
	var transportErr *export.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, downloadB, transportErr.DownloadID)
	assert.True(t, first.closed)
}

func TestPipeline_Run_StreamReadFailureWrapped(t *testing.T) {
	mockClient := new(MockExportClient)
	readErr := iotest.ErrReader(assert.AnError)
	body := &closeTracker{Reader: io.MultiReader(
		strings.NewReader("patient_id,event_time,event_type,value\npatient_1,t1,heart_rate,70\n"),
		readErr,
	)}

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.Nil(t, report)
	var transportErr *export.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "demo", transportErr.ExportID)
	assert.Equal(t, downloadA, transportErr.DownloadID)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, body.closed)
}

func TestPipeline_Run_MalformedRowFailFast(t *testing.T) {
	mockClient := new(MockExportClient)
	first := csvBody("patient_1,t1,heart_rate,70")
	second := csvBody(
		"patient_2,t2,spo2,98",
		",t3,spo2,97",
	)

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA, downloadB, downloadC}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(first, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadB).Return(second, nil)

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(context.Background(), "demo")

	assert.Nil(t, report)
	var malformedErr *consumer.MalformedRowError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, 3, malformedErr.Line)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	mockClient.AssertNumberOfCalls(t, "OpenDownload", 2)
}

func TestPipeline_Run_SkipPolicyCountsMalformed(t *testing.T) {
	mockClient := new(MockExportClient)
	first := csvBody(
		"patient_1,t1,heart_rate,70",
		",t2,heart_rate,71",
	)
	second := csvBody(
		"patient_2,t3,spo2,98",
		"patient_2,t4,,97",
		",t5,spo2,96",
	)

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA, downloadB}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(first, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadB).Return(second, nil)

	p := newTestPipeline(t, mockClient, "skip")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	require.NotNil(t, report.MalformedRows)
	assert.Equal(t, uint64(3), *report.MalformedRows)
	assert.Equal(t, map[string]uint64{"heart_rate": 1, "spo2": 1}, report.Totals)
}

func TestPipeline_Run_SkipPolicyReportsZero(t *testing.T) {
	mockClient := new(MockExportClient)
	body := csvBody("patient_1,t1,heart_rate,70")

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	p := newTestPipeline(t, mockClient, "skip")
	report, err := p.Run(context.Background(), "demo")

	assert.NoError(t, err)
	require.NotNil(t, report.MalformedRows)
	assert.Equal(t, uint64(0), *report.MalformedRows)
}

func TestPipeline_Run_BadHeaderFatalEvenWhenSkipping(t *testing.T) {
	mockClient := new(MockExportClient)
	body := &closeTracker{Reader: strings.NewReader("subject,kind\nx,y\n")}

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	p := newTestPipeline(t, mockClient, "skip")
	report, err := p.Run(context.Background(), "demo")

	assert.Nil(t, report)
	var malformedErr *consumer.MalformedRowError
	assert.ErrorAs(t, err, &malformedErr)
	assert.True(t, body.closed)
}

func TestPipeline_Run_ContextCancelled(t *testing.T) {
	mockClient := new(MockExportClient)
	body := csvBody("patient_1,t1,heart_rate,70")

	mockClient.On("Downloads", mock.Anything, "demo").Return([]uuid.UUID{downloadA}, nil)
	mockClient.On("OpenDownload", mock.Anything, "demo", downloadA).Return(body, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, mockClient, "fail")
	report, err := p.Run(ctx, "demo")

	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, body.closed)
}
