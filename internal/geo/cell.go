package geo

import (
	"fmt"
	"math"
)

// CellPrecision is the number of decimal places kept in a grid cell (~110 m).
const CellPrecision = 3

// Cell is a coarse grid cell. It only groups subscribers; it never decides
// delivery.
type Cell struct {
	Lat float64
	Lng float64
}

// CellOf truncates a point to CellPrecision decimals.
func CellOf(lat, lng float64) Cell {
	scale := math.Pow10(CellPrecision)
	return Cell{
		Lat: truncate(lat, scale),
		Lng: truncate(lng, scale),
	}
}

// truncate drops digits past scale. Values that truncate to zero come back
// as +0 so both sides of the equator and meridian share one key.
func truncate(v, scale float64) float64 {
	t := math.Trunc(v*scale) / scale
	if t == 0 {
		return 0
	}
	return t
}

// Key renders the cell as "<lat>,<lng>" with CellPrecision decimals.
func (c Cell) Key() string {
	return fmt.Sprintf("%.*f,%.*f", CellPrecision, c.Lat, CellPrecision, c.Lng)
}
