// Package scaler applies fitted column scalers to feature rows.
package scaler

import (
	"math"

	"github.com/rotisserie/eris"
)

// Power transform methods.
const (
	MethodYeoJohnson = "yeo-johnson"
	MethodBoxCox     = "box-cox"
)

// Bundle holds the two scalers fitted alongside the model.
type Bundle struct {
	Standard *Standard `json:"standard_scaler"`
	Power    *Power    `json:"power_scaler"`
}

// Standard is a z-score scaler over a fixed set of named columns.
type Standard struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// Power is a power transform over a fixed set of named columns, optionally
// followed by standardization.
type Power struct {
	Columns     []string  `json:"columns"`
	Method      string    `json:"method"`
	Lambdas     []float64 `json:"lambdas"`
	Standardize bool      `json:"standardize"`
	Mean        []float64 `json:"mean"`
	Scale       []float64 `json:"scale"`
}

// Validate checks that both scalers are present and well formed.
func (b *Bundle) Validate() error {
	if b.Standard == nil {
		return eris.New("scaler: missing standard_scaler")
	}
	if b.Power == nil {
		return eris.New("scaler: missing power_scaler")
	}
	if err := b.Standard.Validate(); err != nil {
		return err
	}
	return b.Power.Validate()
}

// Columns returns every column covered by the bundle, standard columns first.
func (b *Bundle) Columns() []string {
	cols := make([]string, 0, len(b.Standard.Columns)+len(b.Power.Columns))
	cols = append(cols, b.Standard.Columns...)
	return append(cols, b.Power.Columns...)
}

// Transform returns a copy of row with both scalers applied to their columns.
// Columns not owned by either scaler pass through unchanged.
func (b *Bundle) Transform(row map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	if err := b.Standard.apply(out); err != nil {
		return nil, err
	}
	if err := b.Power.apply(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks column and statistic lengths.
func (s *Standard) Validate() error {
	if len(s.Columns) == 0 {
		return eris.New("scaler: standard_scaler has no columns")
	}
	if len(s.Mean) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
		return eris.Errorf("scaler: standard_scaler expects %d mean/scale values, got %d/%d",
			len(s.Columns), len(s.Mean), len(s.Scale))
	}
	return nil
}

// TransformValue scales a single value of column i.
func (s *Standard) TransformValue(i int, x float64) float64 {
	return standardize(x, s.Mean[i], s.Scale[i])
}

func (s *Standard) apply(row map[string]float64) error {
	for i, col := range s.Columns {
		x, ok := row[col]
		if !ok {
			return eris.Errorf("scaler: standard_scaler column %q missing from row", col)
		}
		row[col] = s.TransformValue(i, x)
	}
	return nil
}

// Validate checks the method and the column and statistic lengths.
func (p *Power) Validate() error {
	if len(p.Columns) == 0 {
		return eris.New("scaler: power_scaler has no columns")
	}
	switch p.method() {
	case MethodYeoJohnson, MethodBoxCox:
	default:
		return eris.Errorf("scaler: unsupported power method %q", p.Method)
	}
	if len(p.Lambdas) != len(p.Columns) {
		return eris.Errorf("scaler: power_scaler expects %d lambdas, got %d", len(p.Columns), len(p.Lambdas))
	}
	if p.Standardize && (len(p.Mean) != len(p.Columns) || len(p.Scale) != len(p.Columns)) {
		return eris.Errorf("scaler: power_scaler expects %d mean/scale values, got %d/%d",
			len(p.Columns), len(p.Mean), len(p.Scale))
	}
	return nil
}

// TransformValue transforms a single value of column i.
func (p *Power) TransformValue(i int, x float64) (float64, error) {
	var y float64
	switch p.method() {
	case MethodBoxCox:
		if x <= 0 {
			return 0, eris.Errorf("scaler: box-cox requires positive values, %s=%g", p.Columns[i], x)
		}
		y = boxCox(x, p.Lambdas[i])
	default:
		y = yeoJohnson(x, p.Lambdas[i])
	}
	if p.Standardize {
		y = standardize(y, p.Mean[i], p.Scale[i])
	}
	return y, nil
}

func (p *Power) apply(row map[string]float64) error {
	for i, col := range p.Columns {
		x, ok := row[col]
		if !ok {
			return eris.Errorf("scaler: power_scaler column %q missing from row", col)
		}
		y, err := p.TransformValue(i, x)
		if err != nil {
			return err
		}
		row[col] = y
	}
	return nil
}

func (p *Power) method() string {
	if p.Method == "" {
		return MethodYeoJohnson
	}
	return p.Method
}

// standardize treats a zero scale as 1, matching how constant columns are fitted.
func standardize(x, mean, scale float64) float64 {
	if scale == 0 {
		scale = 1
	}
	return (x - mean) / scale
}

// lambdaEps is the tolerance used to pick the logarithmic branch.
const lambdaEps = 1e-8

func yeoJohnson(x, lambda float64) float64 {
	if x >= 0 {
		if math.Abs(lambda) < lambdaEps {
			return math.Log1p(x)
		}
		return (math.Pow(x+1, lambda) - 1) / lambda
	}
	if math.Abs(lambda-2) < lambdaEps {
		return -math.Log1p(-x)
	}
	return -(math.Pow(1-x, 2-lambda) - 1) / (2 - lambda)
}

func boxCox(x, lambda float64) float64 {
	if math.Abs(lambda) < lambdaEps {
		return math.Log(x)
	}
	return (math.Pow(x, lambda) - 1) / lambda
}
