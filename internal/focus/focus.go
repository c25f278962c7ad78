// Package focus holds the spatial kernel behind the tree map: where to point
// the camera so the densest group of an owner's trees is in view, and in which
// order to visit the trees inside the current viewport.
//
// Every function here is pure. Inputs are never mutated and nothing is kept
// between calls, so the package is safe for concurrent use.
package focus

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultGridSize is the cell size, in degrees, used to bucket points when
// looking for the densest area.
const DefaultGridSize = 0.02

// NoPoint marks a record without usable coordinates.
var NoPoint = orb.Point{math.NaN(), math.NaN()}

// Record is a geotagged item. Payload is carried through untouched.
type Record struct {
	ID      string
	Point   orb.Point
	Payload any
}

// Cell is one bucket of the density grid.
type Cell struct {
	// Key is the floored grid index per axis: floor(lon/size), floor(lat/size).
	Key      [2]int64
	Size     float64
	Count    int
	Centroid orb.Point
}

// Origin returns the south-west corner of the cell in degrees.
func (c Cell) Origin() orb.Point {
	return orb.Point{float64(c.Key[0]) * c.Size, float64(c.Key[1]) * c.Size}
}

type accumulator struct {
	key    [2]int64
	count  int
	sumLon float64
	sumLat float64
}

// bucket builds the density histogram. Cells are returned in the order they
// were first seen in records.
func bucket(records []Record, size float64) []accumulator {
	index := make(map[[2]int64]int)
	var cells []accumulator
	for _, r := range records {
		if !finite(r.Point) {
			continue
		}
		key := [2]int64{
			int64(math.Floor(r.Point.Lon() / size)),
			int64(math.Floor(r.Point.Lat() / size)),
		}
		i, ok := index[key]
		if !ok {
			i = len(cells)
			index[key] = i
			cells = append(cells, accumulator{key: key})
		}
		cells[i].count++
		cells[i].sumLon += r.Point.Lon()
		cells[i].sumLat += r.Point.Lat()
	}
	return cells
}

// Densest returns the grid cell holding the most points. On equal counts the
// cell encountered first in records wins. ok is false when no record has
// finite coordinates. A non-positive size falls back to DefaultGridSize.
func Densest(records []Record, size float64) (cell Cell, ok bool) {
	if !(size > 0) || math.IsInf(size, 0) {
		size = DefaultGridSize
	}

	var best *accumulator
	cells := bucket(records, size)
	for i := range cells {
		if best == nil || cells[i].count > best.count {
			best = &cells[i]
		}
	}
	if best == nil {
		return Cell{}, false
	}

	n := float64(best.count)
	return Cell{
		Key:      best.key,
		Size:     size,
		Count:    best.count,
		Centroid: orb.Point{best.sumLon / n, best.sumLat / n},
	}, true
}

// DenseFocus returns the centroid of the densest grid cell. Empty input yields
// (0,0); callers that must tell "no data" apart from the origin should use
// Densest.
func DenseFocus(records []Record, size float64) orb.Point {
	cell, ok := Densest(records, size)
	if !ok {
		return orb.Point{0, 0}
	}
	return cell.Centroid
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
