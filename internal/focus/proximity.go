package focus

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ErrMalformedPoint is reported for records whose coordinates are missing or
// not finite.
var ErrMalformedPoint = errors.New("malformed point")

// Viewport is the visible extent of a map view. When SW longitude is greater
// than NE longitude the viewport crosses the antimeridian.
type Viewport struct {
	SW orb.Point `json:"sw" doc:"South-west corner [lon, lat]"`
	NE orb.Point `json:"ne" doc:"North-east corner [lon, lat]"`
}

// ViewportFromBound converts an orb.Bound to a Viewport.
func ViewportFromBound(b orb.Bound) Viewport {
	return Viewport{SW: b.Min, NE: b.Max}
}

// Contains reports whether p lies inside the viewport, edges included.
func (v Viewport) Contains(p orb.Point) bool {
	if p.Lat() < v.SW.Lat() || p.Lat() > v.NE.Lat() {
		return false
	}
	if v.SW.Lon() <= v.NE.Lon() {
		return p.Lon() >= v.SW.Lon() && p.Lon() <= v.NE.Lon()
	}
	return p.Lon() >= v.SW.Lon() || p.Lon() <= v.NE.Lon()
}

// Center returns the midpoint of the viewport.
func (v Viewport) Center() orb.Point {
	lon := (v.SW.Lon() + v.NE.Lon()) / 2
	if v.SW.Lon() > v.NE.Lon() {
		lon += 180
		if lon > 180 {
			lon -= 360
		}
	}
	return orb.Point{lon, (v.SW.Lat() + v.NE.Lat()) / 2}
}

// Skip describes a record left out of a result.
type Skip struct {
	ID  string
	Err error
}

// Ranked is a visible record with its distance to the reference point.
type Ranked struct {
	Record
	Meters float64
}

// Visible is the outcome of VisibleByProximity.
type Visible struct {
	Records []Ranked
	Skipped []Skip
}

// IDs returns the record identifiers in order.
func (v Visible) IDs() []string {
	ids := make([]string, len(v.Records))
	for i, r := range v.Records {
		ids[i] = r.ID
	}
	return ids
}

// VisibleByProximity keeps the records inside vp and orders them by
// great-circle distance from center, nearest first. Records at equal distance
// keep their input order. Records whose distance cannot be computed are left
// out and listed in Skipped.
func VisibleByProximity(records []Record, vp Viewport, center orb.Point) Visible {
	var out Visible
	for _, r := range records {
		meters, err := distance(center, r.Point)
		if err != nil {
			out.Skipped = append(out.Skipped, Skip{ID: r.ID, Err: err})
			continue
		}
		if !vp.Contains(r.Point) {
			continue
		}
		out.Records = append(out.Records, Ranked{Record: r, Meters: meters})
	}

	slices.SortStableFunc(out.Records, func(a, b Ranked) int {
		return cmp.Compare(a.Meters, b.Meters)
	})
	return out
}

func distance(from, to orb.Point) (float64, error) {
	if !finite(to) {
		return 0, fmt.Errorf("record point %v: %w", to, ErrMalformedPoint)
	}
	if !finite(from) {
		return 0, fmt.Errorf("center %v: %w", from, ErrMalformedPoint)
	}
	return geo.DistanceHaversine(from, to), nil
}
