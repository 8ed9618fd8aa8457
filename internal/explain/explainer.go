// Package explain produces LIME-style local explanations for a regression
// model over quartile-discretized tabular features.
package explain

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/firecast/internal/model"
)

// Feature selection strategies.
const (
	SelectionAuto             = "auto"
	SelectionHighestWeights   = "highest_weights"
	SelectionForwardSelection = "forward_selection"
	SelectionNone             = "none"
)

const (
	ModeRegression        = "regression"
	DiscretizerQuartile   = "quartile"
	defaultNumSamples     = 5000
	defaultNumFeatures    = 10
	forwardSelectionLimit = 6
	finalAlpha            = 1.0
)

// PredictFunc scores a batch of rows given in the explainer's feature order.
type PredictFunc func(rows [][]float64) ([]float64, error)

// Document is the on-disk explainer artifact.
type Document struct {
	Mode             string   `json:"mode"`
	FeatureNames     []string `json:"feature_names"`
	Discretizer      string   `json:"discretizer"`
	KernelWidth      float64  `json:"kernel_width"`
	NumFeatures      int      `json:"num_features"`
	NumSamples       int      `json:"num_samples"`
	FeatureSelection string   `json:"feature_selection"`
	RandomState      *uint64  `json:"random_state"`
	Bins             []Bin    `json:"bins"`
}

// Settings describes how an Explainer samples and fits.
type Settings struct {
	FeatureNames     []string `json:"feature_names" yaml:"feature_names"`
	Discretizer      string   `json:"discretizer" yaml:"discretizer"`
	KernelWidth      float64  `json:"kernel_width" yaml:"kernel_width"`
	NumFeatures      int      `json:"num_features" yaml:"num_features"`
	NumSamples       int      `json:"num_samples" yaml:"num_samples"`
	FeatureSelection string   `json:"feature_selection" yaml:"feature_selection"`
	Seeded           bool     `json:"seeded" yaml:"seeded"`
}

// Explainer is an immutable, concurrency-safe local explanation engine.
type Explainer struct {
	featureNames []string
	bins         []Bin
	kernelWidth  float64
	numFeatures  int
	numSamples   int
	selection    string
	seed         uint64
}

// Result is one local explanation.
type Result struct {
	// Weights are ordered by descending absolute weight.
	Weights         []model.FeatureWeight
	Intercept       float64
	Score           float64
	LocalPrediction float64
}

// Decode reads an explainer document from r and validates it.
func Decode(r io.Reader) (*Explainer, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "explain: decode explainer")
	}
	return New(doc)
}

// New builds an Explainer from a Document, applying defaults.
func New(doc Document) (*Explainer, error) {
	if doc.Mode != "" && doc.Mode != ModeRegression {
		return nil, eris.Errorf("explain: unsupported mode %q", doc.Mode)
	}
	if doc.Discretizer != "" && doc.Discretizer != DiscretizerQuartile {
		return nil, eris.Errorf("explain: unsupported discretizer %q", doc.Discretizer)
	}
	if len(doc.FeatureNames) == 0 {
		return nil, eris.New("explain: explainer has no feature_names")
	}
	if len(doc.Bins) != len(doc.FeatureNames) {
		return nil, eris.Errorf("explain: %d bins for %d features", len(doc.Bins), len(doc.FeatureNames))
	}

	e := &Explainer{
		featureNames: append([]string(nil), doc.FeatureNames...),
		bins:         make([]Bin, len(doc.Bins)),
		kernelWidth:  doc.KernelWidth,
		numFeatures:  doc.NumFeatures,
		numSamples:   doc.NumSamples,
		selection:    doc.FeatureSelection,
	}
	copy(e.bins, doc.Bins)
	for i := range e.bins {
		if err := e.bins[i].validate(); err != nil {
			return nil, eris.Wrapf(err, "explain: bins for %s", e.featureNames[i])
		}
	}

	if e.kernelWidth <= 0 {
		e.kernelWidth = 0.75 * math.Sqrt(float64(len(e.featureNames)))
	}
	if e.numFeatures <= 0 {
		e.numFeatures = defaultNumFeatures
	}
	if e.numSamples <= 0 {
		e.numSamples = defaultNumSamples
	}
	switch e.selection {
	case "":
		e.selection = SelectionAuto
	case SelectionAuto, SelectionHighestWeights, SelectionForwardSelection, SelectionNone:
	default:
		return nil, eris.Errorf("explain: unsupported feature_selection %q", e.selection)
	}
	if doc.RandomState != nil {
		e.seed = *doc.RandomState
	}
	return e, nil
}

// WithNumSamples returns a copy using n perturbation samples. n <= 0 keeps
// the current value.
func (e *Explainer) WithNumSamples(n int) *Explainer {
	if n <= 0 {
		return e
	}
	c := *e
	c.numSamples = n
	return &c
}

// WithSeed returns a copy whose random source is seeded with seed. A zero
// seed keeps the current value.
func (e *Explainer) WithSeed(seed uint64) *Explainer {
	if seed == 0 {
		return e
	}
	c := *e
	c.seed = seed
	return &c
}

// FeatureNames returns the column order the explainer expects.
func (e *Explainer) FeatureNames() []string {
	return append([]string(nil), e.featureNames...)
}

// Settings reports the effective explainer configuration.
func (e *Explainer) Settings() Settings {
	return Settings{
		FeatureNames:     e.FeatureNames(),
		Discretizer:      DiscretizerQuartile,
		KernelWidth:      e.kernelWidth,
		NumFeatures:      e.numFeatures,
		NumSamples:       e.numSamples,
		FeatureSelection: e.selection,
		Seeded:           e.seed != 0,
	}
}

func (e *Explainer) rng() *rand.Rand {
	if e.seed != 0 {
		return rand.New(rand.NewPCG(e.seed, e.seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Explain fits a weighted linear surrogate around instance and returns its
// coefficients labelled by the instance's discretized interval.
func (e *Explainer) Explain(ctx context.Context, instance []float64, predict PredictFunc) (*Result, error) {
	p := len(e.featureNames)
	if len(instance) != p {
		return nil, eris.Errorf("explain: expected %d features, got %d", p, len(instance))
	}
	if predict == nil {
		return nil, eris.New("explain: nil predict function")
	}

	rng := e.rng()
	n := e.numSamples
	own := make([]int, p)
	for j := range p {
		own[j] = e.bins[j].bucket(instance[j])
	}

	// binary marks where a sample shares the instance's bin; rows holds the
	// reconstructed values handed to the model.
	binary := mat.NewDense(n, p, nil)
	rows := make([][]float64, n)
	rows[0] = append([]float64(nil), instance...)
	for j := range p {
		binary.Set(0, j, 1)
	}
	for i := 1; i < n; i++ {
		row := make([]float64, p)
		for j := range p {
			b := e.bins[j].sampleBucket(rng)
			row[j] = e.bins[j].sampleValue(rng, b)
			if b == own[j] {
				binary.Set(i, j, 1)
			}
		}
		rows[i] = row
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "explain: sampling")
	}

	weights := make([]float64, n)
	kw2 := e.kernelWidth * e.kernelWidth
	for i := range n {
		var d2 float64
		for j := range p {
			diff := binary.At(i, j) - 1
			d2 += diff * diff
		}
		weights[i] = math.Sqrt(math.Exp(-d2 / kw2))
	}

	labels, err := predict(rows)
	if err != nil {
		return nil, eris.Wrap(err, "explain: predict samples")
	}
	if len(labels) != n {
		return nil, eris.Errorf("explain: predict returned %d labels for %d rows", len(labels), n)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "explain: predict samples")
	}

	used, err := e.selectFeatures(binary, labels, weights)
	if err != nil {
		return nil, eris.Wrap(err, "explain: feature selection")
	}

	sub := columns(binary, used)
	fit, err := fitRidge(sub, labels, weights, finalAlpha)
	if err != nil {
		return nil, eris.Wrap(err, "explain: surrogate fit")
	}

	res := &Result{
		Weights:         make([]model.FeatureWeight, len(used)),
		Intercept:       fit.intercept,
		Score:           fit.score(sub, labels, weights),
		LocalPrediction: fit.predictRow(sub, 0),
	}
	for k, j := range used {
		res.Weights[k] = model.FeatureWeight{
			Feature: e.bins[j].label(e.featureNames[j], own[j]),
			Weight:  fit.coef[k],
		}
	}
	sort.SliceStable(res.Weights, func(a, b int) bool {
		return math.Abs(res.Weights[a].Weight) > math.Abs(res.Weights[b].Weight)
	})
	return res, nil
}

func (e *Explainer) selectFeatures(x *mat.Dense, y, w []float64) ([]int, error) {
	switch e.selection {
	case SelectionNone:
		all := make([]int, len(e.featureNames))
		for j := range all {
			all[j] = j
		}
		return all, nil
	case SelectionForwardSelection:
		return forwardSelection(x, y, w, e.numFeatures)
	case SelectionHighestWeights:
		return highestWeights(x, y, w, e.numFeatures)
	default:
		if e.numFeatures <= forwardSelectionLimit {
			return forwardSelection(x, y, w, e.numFeatures)
		}
		return highestWeights(x, y, w, e.numFeatures)
	}
}
