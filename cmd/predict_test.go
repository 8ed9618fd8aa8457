package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firecast/internal/artifact/artifacttest"
	"github.com/sells-group/firecast/internal/model"
)

func TestRunPredict(t *testing.T) {
	env, err := initService(context.Background(), testConfig(t), false)
	require.NoError(t, err)

	var out bytes.Buffer
	err = runPredict(context.Background(), &out, env.Service, artifacttest.Scenario(), predictOptions{})
	require.NoError(t, err)

	var pred model.Prediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &pred))
	assert.Equal(t, math.Pow(10, pred.PredictionLog), pred.PredictionAcres)
}

func TestRunPredict_Explain(t *testing.T) {
	env, err := initService(context.Background(), testConfig(t), false)
	require.NoError(t, err)

	var out bytes.Buffer
	err = runPredict(context.Background(), &out, env.Service, artifacttest.Scenario(), predictOptions{explain: true, topK: 3})
	require.NoError(t, err)

	var exp model.Explanation
	require.NoError(t, json.Unmarshal(out.Bytes(), &exp))
	assert.Len(t, exp.Attributions, 3)
	assert.Equal(t, artifacttest.Scenario().Features(), exp.InputFeatures)
}

func newFeatureFlagSet(opts *predictOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("predict", pflag.ContinueOnError)
	for name, dest := range featureFlags(&opts.record) {
		fs.Float64Var(dest, name, 0, "")
	}
	return fs
}

func TestResolveFeatures_Flags(t *testing.T) {
	var opts predictOptions
	fs := newFeatureFlagSet(&opts)
	require.NoError(t, fs.Parse([]string{
		"--temp-max-f=90", "--humidity-pct=20", "--windspeed-mph=15", "--precip-in=0",
		"--ndvi=0.3", "--pop-density=500", "--slope=5",
	}))

	rec, err := resolveFeatures(fs, opts)
	require.NoError(t, err)
	assert.Equal(t, artifacttest.Scenario(), rec)
}

func TestResolveFeatures_MissingFlags(t *testing.T) {
	var opts predictOptions
	fs := newFeatureFlagSet(&opts)
	require.NoError(t, fs.Parse([]string{"--temp-max-f=90"}))

	_, err := resolveFeatures(fs, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slope")
	assert.Contains(t, err.Error(), "humidity-pct")
}

func TestResolveFeatures_InputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.json")
	raw, err := json.Marshal(artifacttest.Scenario())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	var opts predictOptions
	opts.input = path
	rec, err := resolveFeatures(newFeatureFlagSet(&opts), opts)
	require.NoError(t, err)
	assert.Equal(t, artifacttest.Scenario(), rec)
}

func TestReadFeatureFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := readFeatureFile(filepath.Join(dir, "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open input")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"slope":"steep"}`), 0o644))
	_, err = readFeatureFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode input")

	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"slope":5}`), 0o644))
	_, err = readFeatureFile(partial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "temp-max-f", flagName(model.FeatureTempMaxF))
	assert.Equal(t, "ndvi", flagName(model.FeatureNDVI))
	assert.Equal(t, "slope", flagName(model.FeatureSlope))
	for _, f := range model.FeatureNames() {
		assert.NotNil(t, predictCmd.Flags().Lookup(flagName(f)), f)
	}
}
