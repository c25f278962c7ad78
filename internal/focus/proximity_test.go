package focus

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kigaliTrees = []Record{
	rec("1", 29.7406, -2.3505),
	rec("2", 29.738, -2.344),
	rec("3", 29.7452, -2.3488),
	rec("4", 29.75, -2.355),
	rec("5", 29.735, -2.34),
}

var kigaliView = Viewport{SW: orb.Point{29.70, -2.40}, NE: orb.Point{29.80, -2.30}}

func TestViewport_Contains(t *testing.T) {
	tests := []struct {
		name string
		vp   Viewport
		p    orb.Point
		want bool
	}{
		{"inside", kigaliView, orb.Point{29.74, -2.35}, true},
		{"south-west corner", kigaliView, kigaliView.SW, true},
		{"north-east corner", kigaliView, kigaliView.NE, true},
		{"east edge", kigaliView, orb.Point{29.80, -2.35}, true},
		{"east of", kigaliView, orb.Point{29.81, -2.35}, false},
		{"north of", kigaliView, orb.Point{29.75, -2.29}, false},
		{"antimeridian east side", Viewport{SW: orb.Point{170, -10}, NE: orb.Point{-170, 10}}, orb.Point{175, 0}, true},
		{"antimeridian west side", Viewport{SW: orb.Point{170, -10}, NE: orb.Point{-170, 10}}, orb.Point{-175, 0}, true},
		{"antimeridian outside", Viewport{SW: orb.Point{170, -10}, NE: orb.Point{-170, 10}}, orb.Point{0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.vp.Contains(tt.p))
		})
	}
}

func TestViewport_Center(t *testing.T) {
	c := kigaliView.Center()
	assert.InDelta(t, 29.75, c.Lon(), 1e-12)
	assert.InDelta(t, -2.35, c.Lat(), 1e-12)

	wrapped := Viewport{SW: orb.Point{170, -10}, NE: orb.Point{-170, 10}}.Center()
	assert.InDelta(t, 180, wrapped.Lon(), 1e-12)
	assert.InDelta(t, 0, wrapped.Lat(), 1e-12)
}

func TestVisibleByProximity_NoneInView(t *testing.T) {
	vp := Viewport{SW: orb.Point{0, 0}, NE: orb.Point{1, 1}}

	got := VisibleByProximity(kigaliTrees, vp, vp.Center())

	assert.Empty(t, got.Records)
	assert.Empty(t, got.Skipped)
}

func TestVisibleByProximity_CenterOnRecordComesFirst(t *testing.T) {
	center := kigaliTrees[3].Point

	got := VisibleByProximity(kigaliTrees, kigaliView, center)

	require.Len(t, got.Records, len(kigaliTrees))
	assert.Equal(t, "4", got.Records[0].ID)
	assert.Zero(t, got.Records[0].Meters)
}

func TestVisibleByProximity_SortedSubsetInsideViewport(t *testing.T) {
	records := append([]Record{
		rec("far", 30.5, -1.9),
		rec("west", 29.60, -2.35),
	}, kigaliTrees...)
	center := orb.Point{29.74, -2.35}

	got := VisibleByProximity(records, kigaliView, center)

	require.Len(t, got.Records, len(kigaliTrees))
	ids := map[string]bool{}
	for _, r := range records {
		ids[r.ID] = true
	}
	for i, r := range got.Records {
		assert.True(t, ids[r.ID])
		assert.True(t, kigaliView.Contains(r.Point))
		assert.Equal(t, geo.DistanceHaversine(center, r.Point), r.Meters)
		if i > 0 {
			assert.LessOrEqual(t, got.Records[i-1].Meters, r.Meters)
		}
	}
	assert.Equal(t, []string{"1", "3", "2", "4", "5"}, got.IDs())
}

func TestVisibleByProximity_UsesGreatCircleDistance(t *testing.T) {
	// At 60°N a degree of longitude is half as long as a degree of latitude,
	// so the eastern point is nearer even though it is further in degrees.
	records := []Record{
		rec("north", 0, 60.8),
		rec("east", 1.2, 60),
	}
	vp := Viewport{SW: orb.Point{-5, 55}, NE: orb.Point{5, 65}}

	got := VisibleByProximity(records, vp, orb.Point{0, 60})

	assert.Equal(t, []string{"east", "north"}, got.IDs())
}

func TestVisibleByProximity_TiesKeepInputOrder(t *testing.T) {
	records := []Record{
		rec("b", 29.74, -2.35),
		rec("a", 29.74, -2.35),
		rec("c", 29.70, -2.35),
		rec("d", 29.74, -2.35),
	}

	got := VisibleByProximity(records, kigaliView, orb.Point{29.75, -2.35})

	assert.Equal(t, []string{"b", "a", "d", "c"}, got.IDs())
}

func TestVisibleByProximity_Idempotent(t *testing.T) {
	center := orb.Point{29.742, -2.347}

	first := VisibleByProximity(kigaliTrees, kigaliView, center)
	second := VisibleByProximity(kigaliTrees, kigaliView, center)

	assert.Equal(t, first, second)
}

func TestVisibleByProximity_SkipsMalformedRecords(t *testing.T) {
	records := []Record{
		rec("ok", 29.74, -2.35),
		{ID: "missing", Point: NoPoint},
		{ID: "inf", Point: orb.Point{math.Inf(-1), -2.35}},
	}

	got := VisibleByProximity(records, kigaliView, kigaliView.Center())

	assert.Equal(t, []string{"ok"}, got.IDs())
	require.Len(t, got.Skipped, 2)
	assert.Equal(t, "missing", got.Skipped[0].ID)
	assert.ErrorIs(t, got.Skipped[0].Err, ErrMalformedPoint)
	assert.Equal(t, "inf", got.Skipped[1].ID)
	assert.ErrorIs(t, got.Skipped[1].Err, ErrMalformedPoint)
}

func TestVisibleByProximity_DoesNotMutateInput(t *testing.T) {
	records := append([]Record(nil), kigaliTrees...)

	VisibleByProximity(records, kigaliView, orb.Point{29.75, -2.35})

	assert.Equal(t, kigaliTrees, records)
}

func TestStep(t *testing.T) {
	tests := []struct {
		current, direction, n, want int
	}{
		{0, 1, 3, 1},
		{2, 1, 3, 0},
		{0, -1, 3, 2},
		{1, -1, 3, 0},
		{0, -4, 3, 2},
		{0, 1, 1, 0},
		{0, 1, 0, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Step(tt.current, tt.direction, tt.n), "Step(%d, %d, %d)", tt.current, tt.direction, tt.n)
	}
}

func TestIndexOf(t *testing.T) {
	v := VisibleByProximity(kigaliTrees, kigaliView, kigaliTrees[0].Point)

	assert.Equal(t, 0, IndexOf(v, "1"))
	assert.Equal(t, -1, IndexOf(v, "nope"))
}

func TestCameras(t *testing.T) {
	c := orb.Point{29.74, -2.35}

	dense := DenseCamera(c)
	assert.Equal(t, 14.0, dense.Zoom)
	assert.Equal(t, 2500, dense.Duration)

	marker := MarkerCamera(c)
	assert.Equal(t, 16.3, marker.Zoom)
	assert.Equal(t, 80.0, marker.Pitch)
	assert.Equal(t, c, marker.Center)
}
