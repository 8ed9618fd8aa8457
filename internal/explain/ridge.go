package explain

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// minAlpha loads the diagonal when an unregularized fit is requested.
const minAlpha = 1e-10

// ridgeFit is a weighted ridge regression with an unpenalized intercept.
type ridgeFit struct {
	coef      []float64
	intercept float64
}

// fitRidge solves (Xcᵀ W Xc + αI) β = Xcᵀ W yc where Xc and yc are centered
// on their weighted means.
func fitRidge(x *mat.Dense, y, w []float64, alpha float64) (*ridgeFit, error) {
	n, k := x.Dims()
	if n != len(y) || n != len(w) {
		return nil, eris.Errorf("ridge: %d rows, %d labels, %d weights", n, len(y), len(w))
	}
	if alpha < minAlpha {
		alpha = minAlpha
	}

	var sw, ym float64
	for i := range n {
		sw += w[i]
		ym += w[i] * y[i]
	}
	if sw <= 0 {
		return nil, eris.New("ridge: sample weights sum to zero")
	}
	ym /= sw

	fit := &ridgeFit{coef: make([]float64, k), intercept: ym}
	if k == 0 {
		return fit, nil
	}

	xm := make([]float64, k)
	for i := range n {
		for j := range k {
			xm[j] += w[i] * x.At(i, j)
		}
	}
	for j := range xm {
		xm[j] /= sw
	}

	z := mat.NewDense(n, k, nil)
	zy := mat.NewVecDense(n, nil)
	for i := range n {
		sq := math.Sqrt(w[i])
		for j := range k {
			z.Set(i, j, sq*(x.At(i, j)-xm[j]))
		}
		zy.SetVec(i, sq*(y[i]-ym))
	}

	a := mat.NewSymDense(k, nil)
	a.SymOuterK(1, z.T())
	for j := range k {
		a.SetSym(j, j, a.At(j, j)+alpha)
	}
	var b mat.VecDense
	b.MulVec(z.T(), zy)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, eris.New("ridge: normal matrix is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &b); err != nil {
		return nil, eris.Wrap(err, "ridge: solve")
	}

	for j := range k {
		fit.coef[j] = beta.AtVec(j)
		fit.intercept -= xm[j] * fit.coef[j]
	}
	return fit, nil
}

func (f *ridgeFit) predictRow(x *mat.Dense, i int) float64 {
	v := f.intercept
	for j, c := range f.coef {
		v += c * x.At(i, j)
	}
	return v
}

// score is the weighted coefficient of determination.
func (f *ridgeFit) score(x *mat.Dense, y, w []float64) float64 {
	var sw, ym float64
	for i := range y {
		sw += w[i]
		ym += w[i] * y[i]
	}
	ym /= sw

	var ssRes, ssTot float64
	for i := range y {
		r := y[i] - f.predictRow(x, i)
		ssRes += w[i] * r * r
		d := y[i] - ym
		ssTot += w[i] * d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// columns returns a copy of x restricted to the given column indices, which
// must be non-empty.
func columns(x *mat.Dense, idx []int) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(idx), nil)
	for i := range n {
		for j, c := range idx {
			out.Set(i, j, x.At(i, c))
		}
	}
	return out
}

// highestWeights ranks features by |coef·x₀| of a lightly regularized fit on
// every feature.
func highestWeights(x *mat.Dense, y, w []float64, numFeatures int) ([]int, error) {
	_, k := x.Dims()
	fit, err := fitRidge(x, y, w, 0.01)
	if err != nil {
		return nil, err
	}
	idx := make([]int, k)
	contrib := make([]float64, k)
	for j := range k {
		idx[j] = j
		contrib[j] = math.Abs(fit.coef[j] * x.At(0, j))
	}
	sort.SliceStable(idx, func(a, b int) bool { return contrib[idx[a]] > contrib[idx[b]] })
	return idx[:min(numFeatures, k)], nil
}

// forwardSelection greedily adds the feature that most improves the weighted
// R² of an unregularized fit.
func forwardSelection(x *mat.Dense, y, w []float64, numFeatures int) ([]int, error) {
	_, k := x.Dims()
	used := make([]int, 0, numFeatures)
	taken := make([]bool, k)
	for range min(numFeatures, k) {
		best, bestScore := -1, math.Inf(-1)
		for j := range k {
			if taken[j] {
				continue
			}
			cand := append(append([]int(nil), used...), j)
			sub := columns(x, cand)
			fit, err := fitRidge(sub, y, w, 0)
			if err != nil {
				return nil, err
			}
			if s := fit.score(sub, y, w); s > bestScore {
				best, bestScore = j, s
			}
		}
		taken[best] = true
		used = append(used, best)
	}
	return used, nil
}
