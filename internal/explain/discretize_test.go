package explain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quartileBin() Bin {
	return Bin{
		Boundaries:  []float64{-1, 0, 1},
		Means:       []float64{-2, -0.5, 0.5, 2},
		Stds:        []float64{0.3, 0.3, 0.3, 0.3},
		Mins:        []float64{-3, -1, 0, 1},
		Maxs:        []float64{-1, 0, 1, 3},
		Frequencies: []float64{1, 1, 1, 1},
	}
}

func TestBin_BucketAndLabel(t *testing.T) {
	b := quartileBin()
	require.NoError(t, b.validate())

	tests := []struct {
		x      float64
		bucket int
		label  string
	}{
		{-5, 0, "x <= -1.00"},
		{-1, 0, "x <= -1.00"},
		{-0.5, 1, "-1.00 < x <= 0.00"},
		{0.5, 2, "0.00 < x <= 1.00"},
		{1, 2, "0.00 < x <= 1.00"},
		{2, 3, "x > 1.00"},
	}
	for _, tt := range tests {
		got := b.bucket(tt.x)
		assert.Equal(t, tt.bucket, got, "bucket(%v)", tt.x)
		assert.Equal(t, tt.label, b.label("x", got))
	}
}

func TestBin_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *Bin)
		wantErr string
	}{
		{"no boundaries", func(b *Bin) { b.Boundaries = nil }, "no boundaries"},
		{"unsorted", func(b *Bin) { b.Boundaries = []float64{1, 0, 2} }, "ascending"},
		{"short means", func(b *Bin) { b.Means = b.Means[:2] }, "means"},
		{"zero frequencies", func(b *Bin) { b.Frequencies = []float64{0, 0, 0, 0} }, "sum to zero"},
		{"negative frequency", func(b *Bin) { b.Frequencies = []float64{-1, 1, 1, 1} }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := quartileBin()
			tt.mutate(&b)
			err := b.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBin_SampleStaysInRange(t *testing.T) {
	b := quartileBin()
	require.NoError(t, b.validate())
	rng := rand.New(rand.NewPCG(1, 2))

	counts := make([]int, 4)
	for range 4000 {
		i := b.sampleBucket(rng)
		counts[i]++
		v := b.sampleValue(rng, i)
		assert.GreaterOrEqual(t, v, b.Mins[i])
		assert.LessOrEqual(t, v, b.Maxs[i])
	}
	for i, c := range counts {
		assert.InDelta(t, 1000, c, 150, "bin %d drawn %d times", i, c)
	}
}

func TestBin_SampleDegenerateBin(t *testing.T) {
	b := quartileBin()
	b.Stds[1] = 0
	require.NoError(t, b.validate())
	rng := rand.New(rand.NewPCG(3, 4))
	assert.Equal(t, -0.5, b.sampleValue(rng, 1))
}

func TestBin_SampleSkewedFrequencies(t *testing.T) {
	b := quartileBin()
	b.Frequencies = []float64{0, 0, 0, 5}
	require.NoError(t, b.validate())
	rng := rand.New(rand.NewPCG(5, 6))
	for range 100 {
		assert.Equal(t, 3, b.sampleBucket(rng))
	}
}
