package explain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat/distuv"
)

// Bin holds the training statistics of one feature's quartile discretization.
// Boundaries has k entries; every per-bin slice has k+1.
type Bin struct {
	Boundaries  []float64 `json:"boundaries"`
	Means       []float64 `json:"means"`
	Stds        []float64 `json:"stds"`
	Mins        []float64 `json:"mins"`
	Maxs        []float64 `json:"maxs"`
	Frequencies []float64 `json:"frequencies"`

	cumulative []float64
}

func (b *Bin) validate() error {
	if len(b.Boundaries) == 0 {
		return eris.New("no boundaries")
	}
	if !sort.Float64sAreSorted(b.Boundaries) {
		return eris.New("boundaries not ascending")
	}
	n := len(b.Boundaries) + 1
	for name, s := range map[string][]float64{
		"means": b.Means, "stds": b.Stds, "mins": b.Mins, "maxs": b.Maxs, "frequencies": b.Frequencies,
	} {
		if len(s) != n {
			return eris.Errorf("%s has %d entries, want %d", name, len(s), n)
		}
	}

	var total float64
	for _, f := range b.Frequencies {
		if f < 0 {
			return eris.New("negative frequency")
		}
		total += f
	}
	if total == 0 {
		return eris.New("frequencies sum to zero")
	}
	b.cumulative = make([]float64, n)
	var acc float64
	for i, f := range b.Frequencies {
		acc += f / total
		b.cumulative[i] = acc
	}
	b.cumulative[n-1] = 1
	return nil
}

// bucket returns the bin index of x: the number of boundaries strictly below x.
func (b *Bin) bucket(x float64) int {
	return sort.Search(len(b.Boundaries), func(i int) bool { return b.Boundaries[i] >= x })
}

// label renders the interval of bin i for the named feature.
func (b *Bin) label(name string, i int) string {
	last := len(b.Boundaries) - 1
	switch {
	case i <= 0:
		return fmt.Sprintf("%s <= %.2f", name, b.Boundaries[0])
	case i > last:
		return fmt.Sprintf("%s > %.2f", name, b.Boundaries[last])
	default:
		return fmt.Sprintf("%.2f < %s <= %.2f", b.Boundaries[i-1], name, b.Boundaries[i])
	}
}

// sampleBucket draws a bin index from the training frequencies.
func (b *Bin) sampleBucket(rng *rand.Rand) int {
	u := rng.Float64()
	for i, c := range b.cumulative {
		if u < c {
			return i
		}
	}
	return len(b.cumulative) - 1
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// sampleValue draws a value inside bin i from a normal truncated to the bin's
// observed range.
func (b *Bin) sampleValue(rng *rand.Rand, i int) float64 {
	mean, std := b.Means[i], b.Stds[i]
	lo, hi := b.Mins[i], b.Maxs[i]
	if std <= 0 || hi <= lo {
		return clamp(mean, lo, hi)
	}
	pLo := stdNormal.CDF((lo - mean) / std)
	pHi := stdNormal.CDF((hi - mean) / std)
	if pHi <= pLo {
		return clamp(mean, lo, hi)
	}
	x := mean + std*stdNormal.Quantile(pLo+rng.Float64()*(pHi-pLo))
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return clamp(mean, lo, hi)
	}
	return clamp(x, lo, hi)
}

func clamp(x, lo, hi float64) float64 {
	if hi < lo {
		return x
	}
	return math.Max(lo, math.Min(hi, x))
}
