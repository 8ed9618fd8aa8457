package service

import (
	"github.com/sells-group/firecast/internal/explain"
	"github.com/sells-group/firecast/internal/scaler"
)

// ModelInfo summarizes the loaded artifacts for the /model endpoint and the
// model command.
type ModelInfo struct {
	FeatureOrder    []string         `json:"feature_order" yaml:"feature_order"`
	Trees           int              `json:"trees" yaml:"trees"`
	BaseScore       float64          `json:"base_score" yaml:"base_score"`
	Objective       string           `json:"objective,omitempty" yaml:"objective,omitempty"`
	StandardColumns []string         `json:"standard_columns" yaml:"standard_columns"`
	PowerColumns    []string         `json:"power_columns" yaml:"power_columns"`
	PowerMethod     string           `json:"power_method" yaml:"power_method"`
	Explainer       explain.Settings `json:"explainer" yaml:"explainer"`
	TopK            int              `json:"top_k" yaml:"top_k"`
	CacheSize       int              `json:"cache_size" yaml:"cache_size"`
}

// Info reports what the service is serving.
func (s *Service) Info() ModelInfo {
	sc := s.set.Scalers
	method := sc.Power.Method
	if method == "" {
		method = scaler.MethodYeoJohnson
	}
	return ModelInfo{
		FeatureOrder:    s.set.Model.FeatureNames(),
		Trees:           s.set.Model.NumTrees(),
		BaseScore:       s.set.Model.BaseScore(),
		Objective:       s.set.Model.Objective(),
		StandardColumns: append([]string(nil), sc.Standard.Columns...),
		PowerColumns:    append([]string(nil), sc.Power.Columns...),
		PowerMethod:     method,
		Explainer:       s.explainer.Settings(),
		TopK:            s.topK,
		CacheSize:       s.cacheSize,
	}
}
