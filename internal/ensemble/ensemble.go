// Package ensemble evaluates gradient-boosted regression trees stored in
// XGBoost's JSON dump layout.
package ensemble

import (
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
)

// Node is one entry of a dumped tree. Split nodes carry Split, Yes, No and
// Children; leaves carry Leaf.
type Node struct {
	NodeID         int      `json:"nodeid"`
	Depth          int      `json:"depth,omitempty"`
	Split          string   `json:"split,omitempty"`
	SplitCondition float64  `json:"split_condition,omitempty"`
	Yes            int      `json:"yes,omitempty"`
	No             int      `json:"no,omitempty"`
	Missing        *int     `json:"missing,omitempty"`
	Leaf           *float64 `json:"leaf,omitempty"`
	Children       []Node   `json:"children,omitempty"`
}

// Document is the on-disk model artifact.
type Document struct {
	FeatureNames []string `json:"feature_names"`
	BaseScore    float64  `json:"base_score"`
	Objective    string   `json:"objective,omitempty"`
	Trees        []Node   `json:"trees"`
}

// flatNode is a Node resolved against the model's feature order. Thresholds
// and leaves are float32, matching XGBoost's internal representation.
type flatNode struct {
	feature   int
	threshold float32
	yes       int
	no        int
	missing   int
	leaf      float32
	isLeaf    bool
}

type tree []flatNode

// Model is a loaded, immutable tree ensemble.
type Model struct {
	featureNames []string
	baseScore    float64
	objective    string
	trees        []tree
}

// Decode reads a model document from r and compiles it.
func Decode(r io.Reader) (*Model, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "ensemble: decode model")
	}
	return New(doc)
}

// New compiles a Document into an evaluable Model.
func New(doc Document) (*Model, error) {
	if len(doc.FeatureNames) == 0 {
		return nil, eris.New("ensemble: model has no feature_names")
	}
	if len(doc.Trees) == 0 {
		return nil, eris.New("ensemble: model has no trees")
	}

	index := make(map[string]int, len(doc.FeatureNames))
	for i, name := range doc.FeatureNames {
		if _, dup := index[name]; dup {
			return nil, eris.Errorf("ensemble: duplicate feature %q", name)
		}
		index[name] = i
	}

	m := &Model{
		featureNames: append([]string(nil), doc.FeatureNames...),
		baseScore:    doc.BaseScore,
		objective:    doc.Objective,
		trees:        make([]tree, 0, len(doc.Trees)),
	}
	for i, root := range doc.Trees {
		t, err := compile(root, index)
		if err != nil {
			return nil, eris.Wrapf(err, "ensemble: tree %d", i)
		}
		m.trees = append(m.trees, t)
	}
	return m, nil
}

// compile flattens a nested tree into a slice indexed by node id.
func compile(root Node, index map[string]int) (tree, error) {
	if root.NodeID != 0 {
		return nil, eris.Errorf("root node id is %d, want 0", root.NodeID)
	}
	byID := make(map[int]Node)
	var walk func(n Node) error
	walk = func(n Node) error {
		if _, dup := byID[n.NodeID]; dup {
			return eris.Errorf("duplicate node id %d", n.NodeID)
		}
		byID[n.NodeID] = n
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	t := make(tree, len(byID))
	for id, n := range byID {
		if id < 0 || id >= len(t) {
			return nil, eris.Errorf("node id %d out of range", id)
		}
		if n.Leaf != nil {
			t[id] = flatNode{isLeaf: true, leaf: float32(*n.Leaf)}
			continue
		}
		feature, ok := index[n.Split]
		if !ok {
			return nil, eris.Errorf("node %d splits on unknown feature %q", id, n.Split)
		}
		missing := n.Yes
		if n.Missing != nil {
			missing = *n.Missing
		}
		for _, child := range []int{n.Yes, n.No, missing} {
			if _, ok := byID[child]; !ok {
				return nil, eris.Errorf("node %d references missing child %d", id, child)
			}
		}
		t[id] = flatNode{
			feature:   feature,
			threshold: float32(n.SplitCondition),
			yes:       n.Yes,
			no:        n.No,
			missing:   missing,
		}
	}
	return t, nil
}

// eval walks the tree with the row narrowed to float32, so branch decisions
// near a threshold agree with XGBoost. ok is false if no leaf was reached.
func (t tree) eval(row []float64) (leaf float32, ok bool) {
	idx := 0
	// A well-formed tree reaches a leaf in at most len(t) steps.
	for range len(t) {
		n := t[idx]
		if n.isLeaf {
			return n.leaf, true
		}
		x := row[n.feature]
		switch {
		case math.IsNaN(x):
			idx = n.missing
		case float32(x) < n.threshold:
			idx = n.yes
		default:
			idx = n.no
		}
	}
	return 0, false
}

// FeatureNames returns the canonical column order the model was trained on.
func (m *Model) FeatureNames() []string {
	return append([]string(nil), m.featureNames...)
}

// NumTrees returns the number of boosted trees.
func (m *Model) NumTrees() int { return len(m.trees) }

// BaseScore returns the global bias added to every prediction.
func (m *Model) BaseScore() float64 { return m.baseScore }

// Objective returns the training objective recorded in the artifact.
func (m *Model) Objective() string { return m.objective }

// Predict scores a single row given in FeatureNames order. Leaves are
// accumulated in float32 on top of the base score.
func (m *Model) Predict(row []float64) (float64, error) {
	if len(row) != len(m.featureNames) {
		return 0, eris.Errorf("ensemble: expected %d features, got %d", len(m.featureNames), len(row))
	}
	sum := float32(m.baseScore)
	for i, t := range m.trees {
		v, ok := t.eval(row)
		if !ok {
			return 0, eris.Errorf("ensemble: tree %d did not reach a leaf", i)
		}
		sum += v
	}
	return float64(sum), nil
}

// PredictBatch scores every row.
func (m *Model) PredictBatch(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := m.Predict(row)
		if err != nil {
			return nil, eris.Wrapf(err, "ensemble: row %d", i)
		}
		out[i] = v
	}
	return out, nil
}
