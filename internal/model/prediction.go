package model

import (
	"math"
	"time"
)

// Operation names a service entry point. Used for metrics labels and audit rows.
type Operation string

const (
	OperationPredict Operation = "predict"
	OperationExplain Operation = "explain"
)

// Prediction is the model output on the log10 scale and in acres.
type Prediction struct {
	PredictionLog   float64 `json:"prediction_log" yaml:"prediction_log"`
	PredictionAcres float64 `json:"prediction_acres" yaml:"prediction_acres"`
}

// NewPrediction builds a Prediction from a log10 model output.
func NewPrediction(logValue float64) Prediction {
	return Prediction{
		PredictionLog:   logValue,
		PredictionAcres: math.Pow(10, logValue),
	}
}

// FeatureWeight is one attribution entry of a local explanation.
type FeatureWeight struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// Explanation is a Prediction plus the ranked attributions and the unscaled
// input echoed back.
type Explanation struct {
	Prediction `yaml:",inline"`

	Attributions  []FeatureWeight    `json:"lime_explanation" yaml:"lime_explanation"`
	InputFeatures map[string]float64 `json:"input_features" yaml:"input_features"`
}

// PreparedInput is a feature dictionary reordered into the model's canonical
// column order, with and without scaling applied.
type PreparedInput struct {
	Columns  []string           `json:"columns"`
	Scaled   map[string]float64 `json:"scaled"`
	Unscaled map[string]float64 `json:"unscaled"`
	// Vector holds the scaled values in Columns order.
	Vector []float64 `json:"vector"`
}

// PredictionLog is an audit record of one served request.
type PredictionLog struct {
	ID              string             `json:"id" yaml:"id"`
	Operation       Operation          `json:"operation" yaml:"operation"`
	Input           map[string]float64 `json:"input" yaml:"input"`
	PredictionLog   float64            `json:"prediction_log" yaml:"prediction_log"`
	PredictionAcres float64            `json:"prediction_acres" yaml:"prediction_acres"`
	CreatedAt       time.Time          `json:"created_at" yaml:"created_at"`
}
