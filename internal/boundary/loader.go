package boundary

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/logger"
)

// ErrNoAttributes is returned for a record whose configured attributes are all empty
var ErrNoAttributes = errors.New("record has no attribute values")

// Reader reads the records of one boundary file. fields lists the attribute
// columns to read, in order.
type Reader interface {
	Read(path string, fields []string) ([]Record, error)
}

// Loader turns boundary files into polygon sets
type Loader struct {
	reader    Reader
	assembler Assembler
}

// NewLoader creates a loader reading files through r
func NewLoader(r Reader, a Assembler) *Loader {
	return &Loader{reader: r, assembler: a}
}

// Load reads the file at path and builds the polygon set of its records.
// Every polygon is tagged with district and the level of attr.
func (l *Loader) Load(path, district string, attr config.Attribute) (*PolygonSet, error) {
	log := logger.Get()
	start := time.Now()

	records, err := l.reader.Read(path, attr.Names)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	b := NewSetBuilder(path)
	var stats RingStats
	skipped := 0

	for i, rec := range records {
		if !hasValue(rec.Attributes) {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, ErrNoAttributes)
		}

		poly, rs, err := l.assembler.Assemble(path, i, rec)
		stats.add(rs)
		if err != nil {
			return nil, err
		}
		if poly == nil {
			skipped++
			continue
		}

		info := Info{District: district, Level: attr.Level, Name: rec.Name()}
		if err := b.Add(poly, info); err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
	}

	set := b.Build()
	bound := set.Bound()
	log.Debug("Loaded boundary file",
		zap.String("path", path),
		zap.String("district", district),
		zap.Int("records", len(records)),
		zap.Int("polygons", set.Len()),
		zap.Int("empty_records", skipped),
		zap.Int("rings", stats.Accepted),
		zap.Int("rings_collapsed", stats.Collapsed),
		zap.Int("rings_ignored", stats.Ignored),
		zap.Int("rings_anomalous", stats.Anomalous),
		zap.Float64s("bound", []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}),
		zap.Duration("elapsed", time.Since(start)))

	return set, nil
}

func hasValue(values []string) bool {
	for _, v := range values {
		if v != "" {
			return true
		}
	}
	return false
}
