// Package wkb encodes boundary geometries as PostGIS extended WKB.
package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPolygon      = 3
	wkbMultiPolygon = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// SRID4326 is WGS84, the reference system of all boundary coordinates
const SRID4326 = 4326

// Encoder encodes geometries to EWKB: little-endian, SRID in the header.
// The returned slices alias an internal buffer that is reused by the next call.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a pre-allocated buffer
func NewEncoder(initialSize int) *Encoder {
	return &Encoder{buf: make([]byte, 0, initialSize)}
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Encode encodes a multipolygon, using the plain polygon form when it has a
// single member
func (e *Encoder) Encode(mp orb.MultiPolygon) []byte {
	if len(mp) == 1 {
		return e.EncodePolygon(mp[0])
	}
	return e.EncodeMultiPolygon(mp)
}

// EncodePolygon encodes a polygon; the first ring is the shell, the rest holes
func (e *Encoder) EncodePolygon(poly orb.Polygon) []byte {
	e.Reset()
	if len(poly) == 0 {
		return nil
	}
	e.ensureCapacity(9 + polygonSize(poly))
	e.header(wkbPolygon)
	e.appendRings(poly)
	return e.buf
}

// EncodeMultiPolygon encodes a multipolygon. Member polygons carry no SRID.
func (e *Encoder) EncodeMultiPolygon(mp orb.MultiPolygon) []byte {
	e.Reset()
	if len(mp) == 0 {
		return nil
	}

	size := 13
	for _, poly := range mp {
		size += 5 + polygonSize(poly)
	}
	e.ensureCapacity(size)

	e.header(wkbMultiPolygon)
	e.appendUint32(uint32(len(mp)))
	for _, poly := range mp {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbPolygon)
		e.appendRings(poly)
	}
	return e.buf
}

// polygonSize is the encoded size of the ring count and rings of poly
func polygonSize(poly orb.Polygon) int {
	n := 4
	for _, ring := range poly {
		n += 4 + len(ring)*16
	}
	return n
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01)
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(SRID4326)
}

func (e *Encoder) appendRings(poly orb.Polygon) {
	e.appendUint32(uint32(len(poly)))
	for _, ring := range poly {
		e.appendUint32(uint32(len(ring)))
		for _, p := range ring {
			e.appendFloat64(p.Lon())
			e.appendFloat64(p.Lat())
		}
	}
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
