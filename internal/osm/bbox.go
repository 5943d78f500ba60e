package osm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BoundingBox is a WGS84 rectangle in Overpass order (south, west, north, east).
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// ParseBoundingBox parses "south,west,north,east".
func ParseBoundingBox(raw string) (BoundingBox, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bounding box needs 4 comma separated values, got %q", raw)
	}
	var values [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("bounding box value %q: %w", part, err)
		}
		values[i] = v
	}
	b := BoundingBox{South: values[0], West: values[1], North: values[2], East: values[3]}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks coordinate ranges and ordering.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate in %s", b)
		}
	}
	switch {
	case b.South < -90 || b.North > 90:
		return fmt.Errorf("latitude out of range in %s", b)
	case b.West < -180 || b.East > 180:
		return fmt.Errorf("longitude out of range in %s", b)
	case b.South >= b.North:
		return fmt.Errorf("south must be below north in %s", b)
	case b.West >= b.East:
		return fmt.Errorf("west must be below east in %s", b)
	}
	return nil
}

// String renders the box the way the Overpass QL bbox filter expects it.
func (b BoundingBox) String() string {
	return strings.Join(b.fields(), ",")
}

// CacheBaseName is stable for equal boxes and never contains path separators.
func (b BoundingBox) CacheBaseName() string {
	return "bbox_" + strings.Join(b.fields(), "_")
}

// QueryFragment selects every node in the box plus the ways and relations using them.
func (b BoundingBox) QueryFragment() string {
	return "interpreter?data=(node(" + b.String() + ");<;);out%20body;"
}

func (b BoundingBox) fields() []string {
	return []string{
		formatCoord(b.South),
		formatCoord(b.West),
		formatCoord(b.North),
		formatCoord(b.East),
	}
}

func formatCoord(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
