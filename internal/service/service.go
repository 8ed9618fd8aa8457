// Package service turns raw feature dictionaries into burn-area predictions
// and local explanations using a loaded artifact set.
package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/firecast/internal/artifact"
	"github.com/sells-group/firecast/internal/explain"
	"github.com/sells-group/firecast/internal/metrics"
	"github.com/sells-group/firecast/internal/model"
	"github.com/sells-group/firecast/internal/resilience"
)

// DefaultTopK is the number of attributions returned when none is configured.
const DefaultTopK = 10

// ErrMissingFeature is returned when an input lacks a model feature.
var ErrMissingFeature = eris.New("service: missing feature")

// ErrNonFinite is returned when a model output cannot be expressed in acres.
var ErrNonFinite = eris.New("service: non-finite prediction")

// Recorder persists an audit row per served request. store.Store satisfies it.
type Recorder interface {
	RecordPrediction(ctx context.Context, entry model.PredictionLog) error
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// TopK bounds the attributions returned by Explain.
	TopK int
	// CacheSize is the number of memoized predictions; 0 disables caching.
	CacheSize int
	// NumSamples overrides the explainer's perturbation count when > 0.
	NumSamples int
	// Seed makes explanations reproducible when non-zero.
	Seed uint64

	Metrics  *metrics.Metrics
	Recorder Recorder
}

// Service is safe for concurrent use.
type Service struct {
	set       *artifact.Set
	explainer *explain.Explainer
	cache     *lru.Cache[string, model.Prediction]
	metrics   *metrics.Metrics
	recorder  Recorder
	topK      int
	cacheSize int
}

// New builds a Service over a validated artifact set.
func New(set *artifact.Set, opts Options) (*Service, error) {
	if set == nil {
		return nil, eris.New("service: nil artifact set")
	}
	if err := set.Validate(); err != nil {
		return nil, eris.Wrap(err, "service: artifacts")
	}

	s := &Service{
		set:       set,
		explainer: set.Explainer.WithNumSamples(opts.NumSamples).WithSeed(opts.Seed),
		metrics:   opts.Metrics,
		recorder:  opts.Recorder,
		topK:      opts.TopK,
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, model.Prediction](opts.CacheSize)
		if err != nil {
			return nil, eris.Wrap(err, "service: create cache")
		}
		s.cache = cache
		s.cacheSize = opts.CacheSize
	}
	return s, nil
}

// FeatureNames returns the canonical column order.
func (s *Service) FeatureNames() []string {
	return s.set.Model.FeatureNames()
}

// TopK returns the default attribution count.
func (s *Service) TopK() int { return s.topK }

// Prepare reorders features into the model's column order and scales them.
// Keys outside the model's features are ignored.
func (s *Service) Prepare(features map[string]float64) (*model.PreparedInput, error) {
	columns := s.set.Model.FeatureNames()
	unscaled := make(map[string]float64, len(columns))
	for _, c := range columns {
		v, ok := features[c]
		if !ok {
			return nil, eris.Wrapf(ErrMissingFeature, "service: feature %q", c)
		}
		unscaled[c] = v
	}

	scaled, err := s.set.Scalers.Transform(unscaled)
	if err != nil {
		return nil, eris.Wrap(err, "service: scale features")
	}

	vector := make([]float64, len(columns))
	for i, c := range columns {
		vector[i] = scaled[c]
	}
	return &model.PreparedInput{
		Columns:  columns,
		Scaled:   scaled,
		Unscaled: unscaled,
		Vector:   vector,
	}, nil
}

// Predict returns the burn-area prediction for one feature dictionary.
func (s *Service) Predict(ctx context.Context, features map[string]float64) (*model.Prediction, error) {
	in, err := s.Prepare(features)
	if err != nil {
		return nil, err
	}
	pred, err := s.predict(in)
	if err != nil {
		return nil, err
	}
	s.metrics.IncPrediction(model.OperationPredict)
	s.record(ctx, model.OperationPredict, in, pred)
	return &pred, nil
}

// Explain returns the prediction plus at most topK ranked attributions.
// topK <= 0 uses the configured default.
func (s *Service) Explain(ctx context.Context, features map[string]float64, topK int) (*model.Explanation, error) {
	if topK <= 0 {
		topK = s.topK
	}
	in, err := s.Prepare(features)
	if err != nil {
		return nil, err
	}
	pred, err := s.predict(in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.explainer.Explain(ctx, in.Vector, s.set.PredictFunc())
	if err != nil {
		return nil, eris.Wrap(err, "service: explain")
	}
	zap.L().Debug("explanation computed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("score", res.Score),
		zap.Float64("local_prediction", res.LocalPrediction),
	)

	weights := res.Weights
	if len(weights) > topK {
		weights = weights[:topK]
	}

	s.metrics.IncPrediction(model.OperationExplain)
	s.record(ctx, model.OperationExplain, in, pred)
	return &model.Explanation{
		Prediction:    pred,
		Attributions:  weights,
		InputFeatures: in.Unscaled,
	}, nil
}

func (s *Service) predict(in *model.PreparedInput) (model.Prediction, error) {
	var key string
	if s.cache != nil {
		key = cacheKey(in)
		if p, ok := s.cache.Get(key); ok {
			s.metrics.IncCacheHit()
			return p, nil
		}
	}

	out, err := s.set.Model.Predict(in.Vector)
	if err != nil {
		return model.Prediction{}, eris.Wrap(err, "service: predict")
	}
	p := model.NewPrediction(out)
	if !isFinite(p.PredictionLog) || !isFinite(p.PredictionAcres) {
		return model.Prediction{}, eris.Wrapf(ErrNonFinite, "prediction_log %g", out)
	}
	if s.cache != nil {
		s.cache.Add(key, p)
	}
	return p, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// cacheKey encodes the unscaled values in column order. Scaling is
// deterministic so the raw vector identifies the prediction.
func cacheKey(in *model.PreparedInput) string {
	var b strings.Builder
	for i, c := range in.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(in.Unscaled[c], 'g', -1, 64))
	}
	return b.String()
}

func (s *Service) record(ctx context.Context, op model.Operation, in *model.PreparedInput, pred model.Prediction) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordPrediction(ctx, model.PredictionLog{
		Operation:       op,
		Input:           in.Unscaled,
		PredictionLog:   pred.PredictionLog,
		PredictionAcres: pred.PredictionAcres,
		CreatedAt:       time.Now().UTC(),
	})
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrOpen):
		zap.L().Debug("service: audit store unavailable, prediction not recorded", zap.String("operation", string(op)))
	default:
		zap.L().Warn("service: failed to record prediction", zap.String("operation", string(op)), zap.Error(err))
	}
}
