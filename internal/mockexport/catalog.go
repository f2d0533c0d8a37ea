package mockexport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ExportSpec describes one synthetic export: how many files it spans and
// what its rows look like. Everything derived from it (download ids, file
// contents) is a pure function of the spec, so the same export serves the
// same bytes on every request.
type ExportSpec struct {
	Name        string   `yaml:"name"`
	Downloads   int      `yaml:"downloads"`
	RowsPerFile int      `yaml:"rows_per_file"`
	Patients    int      `yaml:"patients"`
	EventTypes  []string `yaml:"event_types"`
	Seed        int64    `yaml:"seed"`
}

// DownloadIDs returns the export's file ids in fetch order.
func (s ExportSpec) DownloadIDs() []uuid.UUID {
	ids := make([]uuid.UUID, s.Downloads)
	for i := range ids {
		ids[i] = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("medstream:export/%s/%d", s.Name, i)))
	}
	return ids
}

// IndexOf resolves a download id back to its file index.
func (s ExportSpec) IndexOf(downloadID uuid.UUID) (int, bool) {
	for i, id := range s.DownloadIDs() {
		if id == downloadID {
			return i, true
		}
	}
	return 0, false
}

// TotalRows returns the number of data rows across all files of the export.
func (s ExportSpec) TotalRows() int64 {
	return int64(s.Downloads) * int64(s.RowsPerFile)
}

// WriteCSV streams the contents of one file to w. The generator is seeded
// per (export, file index), so repeated requests for the same file produce
// identical bytes.
func (s ExportSpec) WriteCSV(w io.Writer, fileIndex int) error {
	rng := rand.New(rand.NewSource(s.Seed + int64(fileIndex)))
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"patient_id", "event_time", "event_type", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cursor := time.Date(2026, time.January, 15, 8, 0, 0, 0, time.UTC).Add(time.Duration(fileIndex) * time.Hour)
	for i := 0; i < s.RowsPerFile; i++ {
		cursor = cursor.Add(time.Duration(rng.Intn(5)+1) * time.Second)
		eventType := s.EventTypes[rng.Intn(len(s.EventTypes))]
		record := []string{
			fmt.Sprintf("patient_%03d", rng.Intn(s.Patients)+1),
			cursor.Format(time.RFC3339),
			eventType,
			strconv.Itoa(valueFor(rng, eventType)),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (s ExportSpec) validate() error {
	if s.Name == "" {
		return errors.New("export name is required")
	}
	if s.Downloads <= 0 {
		return fmt.Errorf("export %q: downloads must be positive", s.Name)
	}
	if s.RowsPerFile < 0 {
		return fmt.Errorf("export %q: rows_per_file cannot be negative", s.Name)
	}
	if s.Patients <= 0 {
		return fmt.Errorf("export %q: patients must be positive", s.Name)
	}
	if len(s.EventTypes) == 0 {
		return fmt.Errorf("export %q: at least one event type is required", s.Name)
	}
	return nil
}

// valueFor picks a plausible reading for the event type.
func valueFor(rng *rand.Rand, eventType string) int {
	switch eventType {
	case "heart_rate":
		return 55 + rng.Intn(60)
	case "spo2":
		return 90 + rng.Intn(11)
	case "bp_sys":
		return 95 + rng.Intn(50)
	case "bp_dia":
		return 60 + rng.Intn(35)
	default:
		return rng.Intn(200)
	}
}

// Catalog maps export ids to their specs
type Catalog struct {
	exports map[string]ExportSpec
	names   []string
}

// NewCatalog builds a catalog from validated specs.
func NewCatalog(specs ...ExportSpec) (*Catalog, error) {
	c := &Catalog{exports: make(map[string]ExportSpec, len(specs))}
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.exports[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate export %q", spec.Name)
		}
		c.exports[spec.Name] = spec
		c.names = append(c.names, spec.Name)
	}
	return c, nil
}

// DefaultCatalog returns the built-in exports: a tiny demo, a mid-sized
// small, and a large one whose row count dwarfs what fits in memory.
func DefaultCatalog() *Catalog {
	specs := []ExportSpec{
		{
			Name:        "demo",
			Downloads:   2,
			RowsPerFile: 120,
			Patients:    5,
			EventTypes:  []string{"bp_sys", "bp_dia"},
			Seed:        1,
		},
		{
			Name:        "small",
			Downloads:   10,
			RowsPerFile: 250_000,
			Patients:    200,
			EventTypes:  []string{"heart_rate", "spo2"},
			Seed:        2,
		},
		{
			Name:        "large",
			Downloads:   40,
			RowsPerFile: 1_000_000,
			Patients:    5_000,
			EventTypes:  []string{"heart_rate", "spo2", "bp_sys", "bp_dia"},
			Seed:        3,
		},
	}

	c := &Catalog{exports: make(map[string]ExportSpec, len(specs))}
	for _, spec := range specs {
		c.exports[spec.Name] = spec
		c.names = append(c.names, spec.Name)
	}
	return c
}

type catalogFile struct {
	Exports []ExportSpec `yaml:"exports"`
}

// LoadCatalog reads export definitions from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if len(file.Exports) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no exports", path)
	}

	return NewCatalog(file.Exports...)
}

// Get looks up an export by id.
func (c *Catalog) Get(exportID string) (ExportSpec, bool) {
	spec, ok := c.exports[exportID]
	return spec, ok
}

// Names returns the export ids in definition order.
func (c *Catalog) Names() []string {
	return c.names
}
