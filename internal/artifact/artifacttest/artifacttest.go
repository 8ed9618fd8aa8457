// Package artifacttest builds a small, internally consistent artifact set
// for tests.
package artifacttest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/firecast/internal/artifact"
	"github.com/sells-group/firecast/internal/ensemble"
	"github.com/sells-group/firecast/internal/explain"
	"github.com/sells-group/firecast/internal/model"
	"github.com/sells-group/firecast/internal/scaler"
)

// FeatureOrder is the fixture model's canonical column order. It differs
// from the request schema order on purpose.
var FeatureOrder = []string{
	model.FeatureNDVI,
	model.FeatureTempMaxF,
	model.FeatureHumidityPct,
	model.FeatureWindspeedMPH,
	model.FeatureSlope,
	model.FeaturePrecipIn,
	model.FeaturePopDensity,
}

// Seed is the fixture explainer's random_state.
const Seed = 7

// Scenario is the reference request used across tests.
func Scenario() model.FeatureRecord {
	return model.FeatureRecord{
		TempMaxF:     90,
		HumidityPct:  20,
		WindspeedMPH: 15,
		PrecipIn:     0.0,
		NDVI:         0.3,
		PopDensity:   500,
		Slope:        5,
	}
}

// Scalers returns the fixture scaler bundle.
func Scalers() scaler.Bundle {
	return scaler.Bundle{
		Standard: &scaler.Standard{
			Columns: []string{
				model.FeatureTempMaxF,
				model.FeatureHumidityPct,
				model.FeatureWindspeedMPH,
				model.FeatureNDVI,
				model.FeatureSlope,
			},
			Mean:  []float64{75, 40, 10, 0.4, 10},
			Scale: []float64{15, 20, 5, 0.2, 8},
		},
		Power: &scaler.Power{
			Columns:     []string{model.FeaturePrecipIn, model.FeaturePopDensity},
			Method:      scaler.MethodYeoJohnson,
			Lambdas:     []float64{-1.5, 0.1},
			Standardize: true,
			Mean:        []float64{0.05, 4.0},
			Scale:       []float64{0.1, 2.0},
		},
	}
}

func leaf(id int, v float64) ensemble.Node {
	return ensemble.Node{NodeID: id, Leaf: &v}
}

func split(id int, feature string, cond float64, yes, no ensemble.Node) ensemble.Node {
	return ensemble.Node{
		NodeID:         id,
		Split:          feature,
		SplitCondition: cond,
		Yes:            yes.NodeID,
		No:             no.NodeID,
		Children:       []ensemble.Node{yes, no},
	}
}

// Model returns the fixture tree ensemble document.
func Model() ensemble.Document {
	return ensemble.Document{
		FeatureNames: append([]string(nil), FeatureOrder...),
		BaseScore:    1.5,
		Objective:    "reg:squarederror",
		Trees: []ensemble.Node{
			split(0, model.FeatureTempMaxF, 0.5,
				leaf(1, 0.2),
				split(2, model.FeatureHumidityPct, -0.5, leaf(3, 0.9), leaf(4, 0.5))),
			split(0, model.FeatureWindspeedMPH, 0,
				leaf(1, 0.05),
				split(2, model.FeatureNDVI, 0, leaf(3, 0.3), leaf(4, 0.1))),
			split(0, model.FeaturePopDensity, 0, leaf(1, 0.15), leaf(2, -0.1)),
			split(0, model.FeatureSlope, 0.2,
				split(1, model.FeaturePrecipIn, 0, leaf(3, 0.08), leaf(4, -0.2)),
				leaf(2, 0.12)),
		},
	}
}

// Explainer returns the fixture explainer document.
func Explainer() explain.Document {
	seed := uint64(Seed)
	bins := make([]explain.Bin, len(FeatureOrder))
	for i := range bins {
		bins[i] = explain.Bin{
			Boundaries:  []float64{-0.67, 0, 0.67},
			Means:       []float64{-1.2, -0.33, 0.33, 1.2},
			Stds:        []float64{0.4, 0.2, 0.2, 0.4},
			Mins:        []float64{-3, -0.67, 0, 0.67},
			Maxs:        []float64{-0.67, 0, 0.67, 3},
			Frequencies: []float64{1, 1, 1, 1},
		}
	}
	return explain.Document{
		Mode:             explain.ModeRegression,
		FeatureNames:     append([]string(nil), FeatureOrder...),
		Discretizer:      explain.DiscretizerQuartile,
		NumFeatures:      10,
		NumSamples:       500,
		FeatureSelection: explain.SelectionAuto,
		RandomState:      &seed,
		Bins:             bins,
	}
}

// Write marshals the given documents into dir and returns their paths.
func Write(t testing.TB, dir string, scalers scaler.Bundle, mdl ensemble.Document, expl explain.Document) artifact.Paths {
	t.Helper()
	paths := artifact.Paths{
		Dir:       dir,
		Scalers:   "scalers.json",
		Model:     "model.json",
		Explainer: "explainer.json",
	}
	for name, doc := range map[string]any{
		paths.Scalers:   scalers,
		paths.Model:     mdl,
		paths.Explainer: expl,
	} {
		raw, err := json.MarshalIndent(doc, "", "  ")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
	}
	return paths
}

// WriteDefault writes the fixture documents into a fresh temp dir.
func WriteDefault(t testing.TB) artifact.Paths {
	t.Helper()
	return Write(t, t.TempDir(), Scalers(), Model(), Explainer())
}

// Load writes and loads the fixture set.
func Load(t testing.TB) *artifact.Set {
	t.Helper()
	set, err := artifact.Load(context.Background(), WriteDefault(t))
	require.NoError(t, err)
	return set
}
