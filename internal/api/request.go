package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/firecast/internal/model"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

// number is a feature value. It accepts a JSON number or a string holding
// one, and rejects anything that is not finite.
type number float64

var float64Type = reflect.TypeOf(float64(0))

func (n *number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	kind := "number"
	if strings.HasPrefix(raw, `"`) {
		kind = "string"
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	} else if raw != "" && !strings.ContainsRune("-0123456789", rune(raw[0])) {
		return &json.UnmarshalTypeError{Value: jsonKind(raw[0]), Type: float64Type}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		if err == nil || errors.Is(err, strconv.ErrRange) {
			kind = "non-finite " + kind
		}
		return &json.UnmarshalTypeError{Value: kind, Type: float64Type}
	}
	*n = number(v)
	return nil
}

func jsonKind(c byte) string {
	switch c {
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "bool"
	default:
		return "value"
	}
}

// featureRequest is the POST body of /predict and /explain. Pointers let the
// validator tell a missing or null field apart from a zero value.
type featureRequest struct {
	TempMaxF     *number `json:"temp_max_F" validate:"required"`
	HumidityPct  *number `json:"humidity_pct" validate:"required"`
	WindspeedMPH *number `json:"windspeed_mph" validate:"required"`
	PrecipIn     *number `json:"precip_in" validate:"required"`
	NDVI         *number `json:"ndvi" validate:"required"`
	PopDensity   *number `json:"pop_density" validate:"required"`
	Slope        *number `json:"slope" validate:"required"`
}

func (r featureRequest) record() model.FeatureRecord {
	return model.FeatureRecord{
		TempMaxF:     float64(*r.TempMaxF),
		HumidityPct:  float64(*r.HumidityPct),
		WindspeedMPH: float64(*r.WindspeedMPH),
		PrecipIn:     float64(*r.PrecipIn),
		NDVI:         float64(*r.NDVI),
		PopDensity:   float64(*r.PopDensity),
		Slope:        float64(*r.Slope),
	}
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// requestError is a client error reported as 422.
type requestError struct {
	msg    string
	fields []FieldError
}

func (e *requestError) Error() string { return e.msg }

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeFeatures parses and validates a feature body. The body must hold a
// single JSON object; unknown fields are ignored.
func decodeFeatures(v *validator.Validate, body io.Reader) (model.FeatureRecord, error) {
	var req featureRequest
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return model.FeatureRecord{}, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.FeatureRecord{}, &requestError{msg: "invalid JSON body: unexpected data after object"}
	}

	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.FeatureRecord{}, err
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return model.FeatureRecord{}, &requestError{msg: "validation failed", fields: fields}
	}
	return req.record(), nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "" {
		return &requestError{msg: "request body must be a JSON object, got " + typeErr.Value}
	}
	if errors.As(err, &typeErr) {
		return &requestError{
			msg: "validation failed",
			fields: []FieldError{{
				Field:   typeErr.Field,
				Message: "must be a number, got " + typeErr.Value,
			}},
		}
	}
	if errors.Is(err, io.EOF) {
		return &requestError{msg: "request body is empty"}
	}
	return &requestError{msg: "invalid JSON body: " + err.Error()}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// topKParam reads the optional top_k query parameter. Absent means 0 (the
// service default).
func topKParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top_k")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &requestError{
			msg:    "validation failed",
			fields: []FieldError{{Field: "top_k", Message: "must be a positive integer"}},
		}
	}
	return n, nil
}
