package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/firecast/internal/service"
)

var modelOutput string

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show metadata of the configured model artifacts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initService(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer env.Close()

		return writeModelInfo(cmd.OutOrStdout(), env.Service.Info(), modelOutput)
	},
}

func writeModelInfo(out io.Writer, info service.ModelInfo, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return eris.Wrap(err, "model: encode yaml")
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(info), "model: encode json")
	default:
		return eris.Errorf("model: unknown output format %q (json, yaml)", format)
	}
}

func init() {
	modelCmd.Flags().StringVarP(&modelOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(modelCmd)
}
