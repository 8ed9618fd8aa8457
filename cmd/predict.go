package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/firecast/internal/model"
	"github.com/sells-group/firecast/internal/service"
)

// predictOptions carries the predict command's flags.
type predictOptions struct {
	record  model.FeatureRecord
	input   string
	explain bool
	topK    int
}

var predictOpts predictOptions

// featureFlags maps each feature flag name to its destination.
func featureFlags(rec *model.FeatureRecord) map[string]*float64 {
	return map[string]*float64{
		"temp-max-f":    &rec.TempMaxF,
		"humidity-pct":  &rec.HumidityPct,
		"windspeed-mph": &rec.WindspeedMPH,
		"precip-in":     &rec.PrecipIn,
		"ndvi":          &rec.NDVI,
		"pop-density":   &rec.PopDensity,
		"slope":         &rec.Slope,
	}
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict burned area for one set of features",
	Long: "Runs a single prediction (or explanation with --explain) against the configured artifacts " +
		"and prints the JSON response. Features come from flags or from a JSON file given with --input.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rec, err := resolveFeatures(cmd.Flags(), predictOpts)
		if err != nil {
			return err
		}

		env, err := initService(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer env.Close()

		return runPredict(ctx, cmd.OutOrStdout(), env.Service, rec, predictOpts)
	},
}

// resolveFeatures reads --input when given, otherwise requires every
// feature flag to be set.
func resolveFeatures(flags *pflag.FlagSet, opts predictOptions) (model.FeatureRecord, error) {
	if opts.input != "" {
		return readFeatureFile(opts.input)
	}
	var missing []string
	for _, name := range model.FeatureNames() {
		if !flags.Changed(flagName(name)) {
			missing = append(missing, flagName(name))
		}
	}
	if len(missing) > 0 {
		return model.FeatureRecord{}, eris.Errorf("predict: missing flags %v (or use --input)", missing)
	}
	return opts.record, nil
}

// flagName converts a feature name to its flag spelling.
func flagName(feature string) string {
	switch feature {
	case model.FeatureTempMaxF:
		return "temp-max-f"
	case model.FeatureHumidityPct:
		return "humidity-pct"
	case model.FeatureWindspeedMPH:
		return "windspeed-mph"
	case model.FeaturePrecipIn:
		return "precip-in"
	case model.FeaturePopDensity:
		return "pop-density"
	default:
		return feature
	}
}

func readFeatureFile(path string) (model.FeatureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.FeatureRecord{}, eris.Wrap(err, "predict: open input")
	}
	defer f.Close() //nolint:errcheck

	raw := map[string]*float64{}
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return model.FeatureRecord{}, eris.Wrap(err, "predict: decode input")
	}
	var rec model.FeatureRecord
	dest := featureFlags(&rec)
	for _, name := range model.FeatureNames() {
		v := raw[name]
		if v == nil {
			return model.FeatureRecord{}, eris.Errorf("predict: input is missing %q", name)
		}
		*dest[flagName(name)] = *v
	}
	return rec, nil
}

func runPredict(ctx context.Context, out io.Writer, svc *service.Service, rec model.FeatureRecord, opts predictOptions) error {
	var (
		result any
		err    error
	)
	if opts.explain {
		result, err = svc.Explain(ctx, rec.Features(), opts.topK)
	} else {
		result, err = svc.Predict(ctx, rec.Features())
	}
	if err != nil {
		return eris.Wrap(err, "predict")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	for name, dest := range featureFlags(&predictOpts.record) {
		predictCmd.Flags().Float64Var(dest, name, 0, "value of the "+name+" feature")
	}
	predictCmd.Flags().StringVar(&predictOpts.input, "input", "", "JSON file with the feature fields")
	predictCmd.Flags().BoolVar(&predictOpts.explain, "explain", false, "include a local explanation")
	predictCmd.Flags().IntVar(&predictOpts.topK, "top-k", 0, "max attributions with --explain (default from config)")
	rootCmd.AddCommand(predictCmd)
}
