// Package shapefile reads polygon boundary files in the ESRI shapefile format.
package shapefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/wegman-software/revgeo-go/internal/boundary"
	"github.com/wegman-software/revgeo-go/internal/geometry"
)

// Reader reads polygon records and their DBF attributes
type Reader struct {
	enc encoding.Encoding
}

// NewReader creates a reader decoding attribute text from the named
// character set. An empty name means the attributes are already UTF-8.
func NewReader(charset string) (*Reader, error) {
	if charset == "" {
		return &Reader{}, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown attribute encoding %q: %w", charset, err)
	}
	return &Reader{enc: enc}, nil
}

// Read returns every polygon record of the file. Shapes other than polygons
// are skipped. Attribute values are read in the order of fields, stopping at
// the first field the file does not have.
func (r *Reader) Read(path string, fields []string) ([]boundary.Record, error) {
	// shp.Open does not report a missing attribute table
	if _, err := os.Stat(dbfPath(path)); err != nil {
		return nil, fmt.Errorf("attribute table: %w", err)
	}

	f, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns := columnIndexes(f.Fields(), fields)

	var decoder *encoding.Decoder
	if r.enc != nil {
		decoder = r.enc.NewDecoder()
	}

	var records []boundary.Record
	for f.Next() {
		row, shape := f.Shape()

		var rings []geometry.Ring
		switch s := shape.(type) {
		case *shp.Polygon:
			rings = splitRings(s.Parts, s.Points)
		case *shp.PolygonZ:
			rings = splitRings(s.Parts, s.Points)
		case *shp.PolygonM:
			rings = splitRings(s.Parts, s.Points)
		default:
			continue
		}

		attrs := make([]string, 0, len(columns))
		for _, col := range columns {
			v := cleanValue(f.ReadAttribute(row, col))
			if decoder != nil && v != "" {
				if v, err = decoder.String(v); err != nil {
					return nil, fmt.Errorf("row %d: failed to decode attribute: %w", row, err)
				}
			}
			attrs = append(attrs, v)
		}

		records = append(records, boundary.Record{Rings: rings, Attributes: attrs})
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// dbfPath returns the attribute table next to a .shp file
func dbfPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".dbf"
}

// columnIndexes maps wanted field names to DBF column positions. Names are
// matched case-insensitively since DBF headers are usually upper case.
func columnIndexes(header []shp.Field, wanted []string) []int {
	byName := make(map[string]int, len(header))
	for i, f := range header {
		byName[strings.ToUpper(f.String())] = i
	}

	cols := make([]int, 0, len(wanted))
	for _, name := range wanted {
		i, ok := byName[strings.ToUpper(name)]
		if !ok {
			break
		}
		cols = append(cols, i)
	}
	return cols
}

func cleanValue(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

// splitRings cuts the flat point list of a shape into its parts. Shapefiles
// wind outer rings clockwise and holes counter-clockwise.
func splitRings(parts []int32, points []shp.Point) []geometry.Ring {
	rings := make([]geometry.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, geometry.Ring{
			Points: ring,
			Outer:  ring.Orientation() == orb.CW,
		})
	}
	return rings
}
