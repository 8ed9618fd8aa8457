package model

// Canonical request field names. The model artifact decides the column
// order; these names only identify the columns.
const (
	FeatureTempMaxF     = "temp_max_F"
	FeatureHumidityPct  = "humidity_pct"
	FeatureWindspeedMPH = "windspeed_mph"
	FeaturePrecipIn     = "precip_in"
	FeatureNDVI         = "ndvi"
	FeaturePopDensity   = "pop_density"
	FeatureSlope        = "slope"
)

// FeatureNames lists the seven request fields in request-schema order.
func FeatureNames() []string {
	return []string{
		FeatureTempMaxF,
		FeatureHumidityPct,
		FeatureWindspeedMPH,
		FeaturePrecipIn,
		FeatureNDVI,
		FeaturePopDensity,
		FeatureSlope,
	}
}

// FeatureRecord is the environmental payload accepted by predict and explain.
type FeatureRecord struct {
	TempMaxF     float64 `json:"temp_max_F" yaml:"temp_max_F"`
	HumidityPct  float64 `json:"humidity_pct" yaml:"humidity_pct"`
	WindspeedMPH float64 `json:"windspeed_mph" yaml:"windspeed_mph"`
	PrecipIn     float64 `json:"precip_in" yaml:"precip_in"`
	NDVI         float64 `json:"ndvi" yaml:"ndvi"`
	PopDensity   float64 `json:"pop_density" yaml:"pop_density"`
	Slope        float64 `json:"slope" yaml:"slope"`
}

// Features returns the record as a feature dictionary keyed by field name.
func (r FeatureRecord) Features() map[string]float64 {
	return map[string]float64{
		FeatureTempMaxF:     r.TempMaxF,
		FeatureHumidityPct:  r.HumidityPct,
		FeatureWindspeedMPH: r.WindspeedMPH,
		FeaturePrecipIn:     r.PrecipIn,
		FeatureNDVI:         r.NDVI,
		FeaturePopDensity:   r.PopDensity,
		FeatureSlope:        r.Slope,
	}
}
