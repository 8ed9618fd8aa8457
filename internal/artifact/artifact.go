// Package artifact loads and cross-checks the scaler, model and explainer
// documents that back the prediction service.
package artifact

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/firecast/internal/ensemble"
	"github.com/sells-group/firecast/internal/explain"
	"github.com/sells-group/firecast/internal/scaler"
)

// Paths locates the three artifact documents. Relative file names resolve
// against Dir.
type Paths struct {
	Dir       string
	Scalers   string
	Model     string
	Explainer string
}

func (p Paths) resolve(name string) string {
	if filepath.IsAbs(name) || p.Dir == "" {
		return name
	}
	return filepath.Join(p.Dir, name)
}

// Set is the immutable collection of loaded artifacts.
type Set struct {
	Scalers   *scaler.Bundle
	Model     *ensemble.Model
	Explainer *explain.Explainer
}

// Load reads all three documents concurrently, then validates that they
// describe the same columns. Any failure is returned; there is no partial Set.
func Load(ctx context.Context, paths Paths) (*Set, error) {
	var set Set
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, err := readFile(gctx, paths.resolve(paths.Scalers), decodeScalers)
		if err != nil {
			return eris.Wrap(err, "artifact: load scalers")
		}
		set.Scalers = b
		return nil
	})
	g.Go(func() error {
		m, err := readFile(gctx, paths.resolve(paths.Model), ensemble.Decode)
		if err != nil {
			return eris.Wrap(err, "artifact: load model")
		}
		set.Model = m
		return nil
	})
	g.Go(func() error {
		e, err := readFile(gctx, paths.resolve(paths.Explainer), explain.Decode)
		if err != nil {
			return eris.Wrap(err, "artifact: load explainer")
		}
		set.Explainer = e
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	zap.L().Info("artifacts loaded",
		zap.Strings("feature_order", set.Model.FeatureNames()),
		zap.Int("trees", set.Model.NumTrees()),
		zap.Strings("standard_columns", set.Scalers.Standard.Columns),
		zap.Strings("power_columns", set.Scalers.Power.Columns),
	)
	return &set, nil
}

func readFile[T any](ctx context.Context, path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	v, err := decode(f)
	if err != nil {
		return zero, eris.Wrapf(err, "decode %s", path)
	}
	return v, nil
}

func decodeScalers(r io.Reader) (*scaler.Bundle, error) {
	var b scaler.Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, eris.Wrap(err, "scaler: decode bundle")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate enforces the cross-artifact invariants: the scaler columns
// partition the model's features, and the explainer uses the model's order.
func (s *Set) Validate() error {
	if s.Scalers == nil || s.Model == nil || s.Explainer == nil {
		return eris.New("artifact: incomplete artifact set")
	}

	features := s.Model.FeatureNames()
	owner := make(map[string]string, len(features))
	for _, f := range features {
		owner[f] = ""
	}
	claim := func(scalerName string, cols []string) error {
		for _, c := range cols {
			prev, known := owner[c]
			if !known {
				return eris.Errorf("artifact: %s column %q is not a model feature", scalerName, c)
			}
			if prev != "" {
				return eris.Errorf("artifact: column %q claimed by both %s and %s", c, prev, scalerName)
			}
			owner[c] = scalerName
		}
		return nil
	}
	if err := claim("standard_scaler", s.Scalers.Standard.Columns); err != nil {
		return err
	}
	if err := claim("power_scaler", s.Scalers.Power.Columns); err != nil {
		return err
	}
	for _, f := range features {
		if owner[f] == "" {
			return eris.Errorf("artifact: model feature %q is not covered by any scaler", f)
		}
	}

	expl := s.Explainer.FeatureNames()
	if len(expl) != len(features) {
		return eris.Errorf("artifact: explainer has %d features, model has %d", len(expl), len(features))
	}
	for i := range features {
		if expl[i] != features[i] {
			return eris.Errorf("artifact: explainer feature %d is %q, model expects %q", i, expl[i], features[i])
		}
	}
	return nil
}

// PredictFunc binds the explainer's prediction callable to the model.
func (s *Set) PredictFunc() explain.PredictFunc {
	return s.Model.PredictBatch
}
