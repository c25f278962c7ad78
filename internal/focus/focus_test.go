package focus

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, lon, lat float64) Record {
	return Record{ID: id, Point: orb.Point{lon, lat}}
}

func TestDenseFocus_Empty(t *testing.T) {
	assert.Equal(t, orb.Point{0, 0}, DenseFocus(nil, DefaultGridSize))
	assert.Equal(t, orb.Point{0, 0}, DenseFocus([]Record{}, DefaultGridSize))

	_, ok := Densest(nil, DefaultGridSize)
	assert.False(t, ok)
}

func TestDenseFocus_PicksClusterOverOutliers(t *testing.T) {
	records := []Record{
		rec("a", 29.005, -1.005),
		rec("b", 29.741, -2.351),
		rec("c", 29.745, -2.355),
		rec("d", 29.006, -1.006),
		rec("e", 29.748, -2.352),
	}

	got := DenseFocus(records, 0.02)

	assert.InDelta(t, (29.741+29.745+29.748)/3, got.Lon(), 1e-12)
	assert.InDelta(t, (-2.351-2.355-2.352)/3, got.Lat(), 1e-12)

	cell, ok := Densest(records, 0.02)
	require.True(t, ok)
	assert.Equal(t, 3, cell.Count)
	assert.Equal(t, [2]int64{1487, -118}, cell.Key)
	assert.InDelta(t, 29.74, cell.Origin().Lon(), 1e-9)
}

func TestDenseFocus_TieGoesToFirstCellSeen(t *testing.T) {
	records := []Record{
		rec("a1", 10.001, 10.001),
		rec("b1", 20.001, 20.001),
		rec("b2", 20.003, 20.003),
		rec("a2", 10.003, 10.003),
	}

	got := DenseFocus(records, 0.02)

	assert.InDelta(t, 10.002, got.Lon(), 1e-12)
	assert.InDelta(t, 10.002, got.Lat(), 1e-12)
}

func TestDenseFocus_GridSizeFallback(t *testing.T) {
	records := []Record{rec("a", 1.001, 1.001), rec("b", 1.003, 1.003)}

	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		cell, ok := Densest(records, size)
		require.True(t, ok)
		assert.Equal(t, DefaultGridSize, cell.Size)
		assert.Equal(t, 2, cell.Count)
	}
}

func TestDenseFocus_GridSizeChangesClusters(t *testing.T) {
	records := []Record{
		rec("a", 0.5, 0.5),
		rec("b", 5.501, 5.501),
		rec("c", 5.503, 5.503),
		rec("d", 0.6, 0.6),
		rec("e", 0.7, 0.7),
	}

	fine := DenseFocus(records, 0.02)
	coarse := DenseFocus(records, 10)

	assert.InDelta(t, 5.502, fine.Lon(), 1e-12)
	assert.InDelta(t, (0.5+5.501+5.503+0.6+0.7)/5, coarse.Lon(), 1e-12)
}

func TestDenseFocus_IgnoresNonFinitePoints(t *testing.T) {
	records := []Record{
		{ID: "x", Point: NoPoint},
		rec("a", 3.001, 4.001),
		{ID: "y", Point: orb.Point{math.Inf(1), 0}},
	}

	assert.Equal(t, orb.Point{3.001, 4.001}, DenseFocus(records, DefaultGridSize))
	assert.Equal(t, orb.Point{0, 0}, DenseFocus(records[:1], DefaultGridSize))
}

func TestDenseFocus_ResultIsMeanOfItsCell(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(60)
		records := make([]Record, n)
		for i := range records {
			records[i] = rec(strconv.Itoa(i), 30+rng.Float64()*0.1, -2+rng.Float64()*0.1)
		}

		cell, ok := Densest(records, DefaultGridSize)
		require.True(t, ok)

		var sumLon, sumLat float64
		var members int
		for _, r := range records {
			key := [2]int64{
				int64(math.Floor(r.Point.Lon() / DefaultGridSize)),
				int64(math.Floor(r.Point.Lat() / DefaultGridSize)),
			}
			if key == cell.Key {
				members++
				sumLon += r.Point.Lon()
				sumLat += r.Point.Lat()
			}
		}
		require.Equal(t, cell.Count, members)
		assert.InDelta(t, sumLon/float64(members), cell.Centroid.Lon(), 1e-9)
		assert.InDelta(t, sumLat/float64(members), cell.Centroid.Lat(), 1e-9)
	}
}

func TestDenseFocus_DoesNotMutateInput(t *testing.T) {
	records := []Record{rec("a", 1, 1), rec("b", 2, 2)}
	before := append([]Record(nil), records...)

	DenseFocus(records, DefaultGridSize)

	assert.Equal(t, before, records)
}
