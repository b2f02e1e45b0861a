package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sum(v []int64) int64 {
	var s int64
	for _, x := range v {
		s += x
	}
	return s
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []int64
	}{
		{"exact", 10, []int64{3, 3, 4}, []int64{3, 3, 4}},
		{"tie goes to last line", 100, []int64{1, 1, 1}, []int64{33, 33, 34}},
		{"largest remainder wins", 101, []int64{50, 25, 25}, []int64{51, 25, 25}},
		{"zero weights split evenly", 7, []int64{0, 0}, []int64{3, 4}},
		{"zero weight line gets nothing", 9, []int64{0, 5, 4}, []int64{0, 5, 4}},
		{"zero total", 0, []int64{1, 2}, []int64{0, 0}},
		{"single line", 17, []int64{3}, []int64{17}},
		{"no lines", 17, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allocate(tt.total, tt.weights))
		})
	}
}

func TestAllocate_LargeValuesDoNotOverflow(t *testing.T) {
	got := Allocate(1_000_000_000_000_000, []int64{3_000_000_000_000_000, 1_000_000_000_000_000})
	assert.Equal(t, []int64{750_000_000_000_000, 250_000_000_000_000}, got)
}

func TestAllocate_AlwaysSumsToTotal(t *testing.T) {
	weights := []int64{999, 1001, 500, 1, 7, 13}
	for total := int64(0); total < 500; total += 7 {
		shares := Allocate(total, weights)
		assert.Equal(t, total, sum(shares), "total %d", total)
		for i, s := range shares {
			assert.GreaterOrEqual(t, s, int64(0), "share %d", i)
		}
	}
}
