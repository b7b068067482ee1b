package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("frame_%06d.png", i+1)
	}
	return paths
}

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		name      string
		frames    int
		size      int
		wantSizes []int
	}{
		{"empty", 0, 8, nil},
		{"single short batch", 3, 8, []int{3}},
		{"exact multiple", 8, 4, []int{4, 4}},
		{"ragged tail", 10, 4, []int{4, 4, 2}},
		{"size one", 3, 1, []int{1, 1, 1}},
		{"zero size means one batch", 5, 0, []int{5}},
		{"negative size means one batch", 5, -1, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := framePaths(tt.frames)
			batches := SplitBatches(paths, tt.size)

			require.Len(t, batches, len(tt.wantSizes))
			for i, want := range tt.wantSizes {
				assert.Len(t, batches[i], want)
			}
		})
	}
}

func TestSplitBatchesPreservesOrder(t *testing.T) {
	paths := framePaths(10)
	batches := SplitBatches(paths, 3)

	var flat []string
	for _, b := range batches {
		flat = append(flat, b...)
	}
	assert.Equal(t, paths, flat)
}
