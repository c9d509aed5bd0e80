// Package geo provides area-of-interest geometry and date-range helpers.
//
// All coordinates are WGS84 (EPSG:4326) longitude/latitude degrees; any
// reprojection happens in the host application before coordinates reach
// this service.
package geo

import (
	"encoding/json"
	"fmt"
)

// BBox is an axis-aligned bounding box in EPSG:4326.
type BBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// Validate checks coordinate ordering and WGS84 bounds.
func (b BBox) Validate() error {
	if b.MinX >= b.MaxX {
		return fmt.Errorf("minx (%v) must be less than maxx (%v)", b.MinX, b.MaxX)
	}
	if b.MinY >= b.MaxY {
		return fmt.Errorf("miny (%v) must be less than maxy (%v)", b.MinY, b.MaxY)
	}
	if b.MinX < -180 || b.MaxX > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]")
	}
	if b.MinY < -90 || b.MaxY > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]")
	}
	return nil
}

// Polygon is a GeoJSON geometry holding a single exterior ring.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Polygon converts the box to a closed GeoJSON polygon ring,
// counterclockwise per RFC 7946.
func (b BBox) Polygon() Polygon {
	ring := [][2]float64{
		{b.MinX, b.MinY},
		{b.MaxX, b.MinY},
		{b.MaxX, b.MaxY},
		{b.MinX, b.MaxY},
		{b.MinX, b.MinY},
	}
	return Polygon{
		Type:        "Polygon",
		Coordinates: [][][2]float64{ring},
	}
}

// Validate checks the polygon is a GeoJSON Polygon with at least one
// closed ring of four or more distinct positions.
func (p Polygon) Validate() error {
	if p.Type != "Polygon" {
		return fmt.Errorf("geometry type must be Polygon, got %q", p.Type)
	}
	if len(p.Coordinates) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for i, ring := range p.Coordinates {
		if len(ring) < 4 {
			return fmt.Errorf("ring %d has %d positions, need at least 4", i, len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for _, pos := range ring {
			if pos[0] < -180 || pos[0] > 180 || pos[1] < -90 || pos[1] > 90 {
				return fmt.Errorf("ring %d has a position outside WGS84 bounds", i)
			}
		}
	}
	return nil
}

// MarshalGeometry renders the polygon as a GeoJSON string for the
// platform's submission payload.
func (p Polygon) MarshalGeometry() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode geometry: %w", err)
	}
	return string(data), nil
}
