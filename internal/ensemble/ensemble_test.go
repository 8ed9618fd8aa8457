package ensemble

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = `{
  "feature_names": ["x", "y"],
  "base_score": 0.5,
  "objective": "reg:squarederror",
  "trees": [
    {"nodeid": 0, "depth": 0, "split": "x", "split_condition": 1.0, "yes": 1, "no": 2, "missing": 2,
     "children": [{"nodeid": 1, "leaf": -0.25}, {"nodeid": 2, "leaf": 0.75}]},
    {"nodeid": 0, "depth": 0, "split": "y", "split_condition": 0.0, "yes": 1, "no": 2,
     "children": [
       {"nodeid": 1, "leaf": 0.1},
       {"nodeid": 2, "depth": 1, "split": "x", "split_condition": 3.0, "yes": 3, "no": 4,
        "children": [{"nodeid": 3, "leaf": 0.2}, {"nodeid": 4, "leaf": 0.4}]}
     ]}
  ]
}`

func loadTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := Decode(strings.NewReader(testModel))
	require.NoError(t, err)
	return m
}

func TestDecode_Metadata(t *testing.T) {
	m := loadTestModel(t)
	assert.Equal(t, []string{"x", "y"}, m.FeatureNames())
	assert.Equal(t, 2, m.NumTrees())
	assert.Equal(t, 0.5, m.BaseScore())
	assert.Equal(t, "reg:squarederror", m.Objective())
}

func TestModel_Predict(t *testing.T) {
	m := loadTestModel(t)

	tests := []struct {
		name string
		row  []float64
		want float64
	}{
		{"left left", []float64{0, -1}, 0.5 - 0.25 + 0.1},
		{"right deep left", []float64{2, 1}, 0.5 + 0.75 + 0.2},
		{"right deep right", []float64{5, 1}, 0.5 + 0.75 + 0.4},
		{"threshold goes no", []float64{1, 0}, 0.5 + 0.75 + 0.2},
		{"nan follows missing", []float64{math.NaN(), -1}, 0.5 + 0.75 + 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Predict(tt.row)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestModel_PredictFloat32Threshold(t *testing.T) {
	yes, no := 1.0, 2.0
	m, err := New(Document{
		FeatureNames: []string{"a"},
		Trees: []Node{{
			Split: "a", SplitCondition: 0.300000012, Yes: 1, No: 2,
			Children: []Node{{NodeID: 1, Leaf: &yes}, {NodeID: 2, Leaf: &no}},
		}},
	})
	require.NoError(t, err)

	// 0.30000001 is below the threshold in float64 but rounds to the same
	// float32 value, so XGBoost takes the no branch.
	got, err := m.Predict([]float64{0.30000001})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = m.Predict([]float64{0.29})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestModel_PredictSumsInFloat32(t *testing.T) {
	leaf := 0.1
	m, err := New(Document{
		FeatureNames: []string{"a"},
		BaseScore:    0.5,
		Trees:        []Node{{Leaf: &leaf}, {Leaf: &leaf}},
	})
	require.NoError(t, err)

	want := float32(0.5)
	want += float32(leaf)
	want += float32(leaf)
	got, err := m.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, float64(want), got)
}

func TestModel_PredictWrongWidth(t *testing.T) {
	m := loadTestModel(t)
	_, err := m.Predict([]float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 features")
}

func TestModel_PredictBatch(t *testing.T) {
	m := loadTestModel(t)
	got, err := m.PredictBatch([][]float64{{0, -1}, {5, 1}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	single, err := m.Predict([]float64{5, 1})
	require.NoError(t, err)
	assert.Equal(t, single, got[1])
}

func TestFeatureNames_ReturnsCopy(t *testing.T) {
	m := loadTestModel(t)
	names := m.FeatureNames()
	names[0] = "mutated"
	assert.Equal(t, "x", m.FeatureNames()[0])
}

func TestNew_Errors(t *testing.T) {
	leaf := 1.0
	tests := []struct {
		name    string
		doc     Document
		wantErr string
	}{
		{"no features", Document{Trees: []Node{{Leaf: &leaf}}}, "no feature_names"},
		{"no trees", Document{FeatureNames: []string{"x"}}, "no trees"},
		{"duplicate feature", Document{FeatureNames: []string{"x", "x"}, Trees: []Node{{Leaf: &leaf}}}, "duplicate feature"},
		{
			"unknown split feature",
			Document{FeatureNames: []string{"x"}, Trees: []Node{{
				Split: "z", Yes: 1, No: 2,
				Children: []Node{{NodeID: 1, Leaf: &leaf}, {NodeID: 2, Leaf: &leaf}},
			}}},
			"unknown feature",
		},
		{
			"missing child",
			Document{FeatureNames: []string{"x"}, Trees: []Node{{
				Split: "x", Yes: 1, No: 2,
				Children: []Node{{NodeID: 1, Leaf: &leaf}},
			}}},
			"missing child",
		},
		{"root not zero", Document{FeatureNames: []string{"x"}, Trees: []Node{{NodeID: 3, Leaf: &leaf}}}, "root node id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode(strings.NewReader("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model")
}
