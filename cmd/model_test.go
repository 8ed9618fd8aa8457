package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/firecast/internal/artifact/artifacttest"
	"github.com/sells-group/firecast/internal/service"
)

func TestWriteModelInfo(t *testing.T) {
	env, err := initService(context.Background(), testConfig(t), false)
	require.NoError(t, err)
	info := env.Service.Info()

	var js bytes.Buffer
	require.NoError(t, writeModelInfo(&js, info, "json"))
	var fromJSON service.ModelInfo
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	assert.Equal(t, artifacttest.FeatureOrder, fromJSON.FeatureOrder)

	var ym bytes.Buffer
	require.NoError(t, writeModelInfo(&ym, info, "yaml"))
	assert.Contains(t, ym.String(), "feature_order:")
	var fromYAML service.ModelInfo
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, info.Trees, fromYAML.Trees)
	assert.Equal(t, info.Explainer.NumSamples, fromYAML.Explainer.NumSamples)

	err = writeModelInfo(&bytes.Buffer{}, info, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
