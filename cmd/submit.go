package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/climb-tre/onyx-analysis-cli/internal/analysis"
)

var (
	submitInput       string
	submitName        string
	submitDescription string
	submitPipeline    string
	submitCommand     string
	submitResult      string
	submitMethodsFile string
	submitMetricsFile string
	submitReport      string
	submitOutputs     string
	submitServer      string
	submitLocal       string
	submitDryRun      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Build an analysis record and submit it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("run_id", uuid.NewString()))

		server := analysis.Server(submitServer)
		if !server.Valid() {
			return eris.Errorf("unknown server %q", submitServer)
		}

		rec := analysis.New()
		rec.SetRetryPolicy(retryPolicy(cfg.Retry))
		rec.SetIdentity(submitName, submitDescription)

		if err := rec.SetPipelineMetadata(submitPipeline); err != nil {
			return err
		}
		if submitCommand != "" {
			rec.SetPipelineCommand(submitCommand)
		}

		if submitMethodsFile != "" {
			methods, err := loadMapping(submitMethodsFile)
			if err != nil {
				return err
			}
			if err := rec.SetMethods(methods); err != nil {
				return err
			}
		}

		metrics := map[string]any{}
		if submitMetricsFile != "" {
			m, err := loadMapping(submitMetricsFile)
			if err != nil {
				return err
			}
			metrics = m
		}
		if err := rec.SetResults(submitResult, metrics); err != nil {
			return err
		}

		if submitReport != "" {
			rec.SetReport(submitReport)
		}
		if submitOutputs != "" {
			rec.SetOutputs(submitOutputs)
		}
		if submitInput != "" {
			if err := rec.SetServerRecords(submitInput, server); err != nil {
				return err
			}
		}

		if submitLocal != "" {
			if err := rec.WriteLocalDocument(submitLocal); err != nil {
				return err
			}
			log.Info("analysis written to local document", zap.String("path", submitLocal))
			return nil
		}

		result, exitcode := rec.WriteRemote(ctx, newOnyxClient(), server, submitDryRun)
		if exitcode != analysis.ExitOK {
			return eris.New("analysis submission failed")
		}

		log.Info("analysis submitted",
			zap.String("server", string(server)),
			zap.Bool("dry_run", submitDryRun),
			zap.Any("result", result),
		)
		return nil
	},
}

// loadMapping reads a key/value mapping from a JSON or YAML file.
func loadMapping(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read mapping %s", path)
	}

	var m map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrapf(err, "parse yaml mapping %s", path)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrapf(err, "parse json mapping %s", path)
		}
	}
	return m, nil
}

func init() {
	submitCmd.Flags().StringVarP(&submitInput, "input", "i", "", "sample ID to file under the server records")
	submitCmd.Flags().StringVar(&submitName, "name", "", "analysis name (required)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "analysis description")
	submitCmd.Flags().StringVar(&submitPipeline, "pipeline", "", "pipeline module path for metadata lookup (required)")
	submitCmd.Flags().StringVar(&submitCommand, "command", "", "command line the pipeline ran with")
	submitCmd.Flags().StringVar(&submitResult, "result", "", "headline result label (required)")
	submitCmd.Flags().StringVar(&submitMethodsFile, "methods", "", "path to a JSON or YAML methods mapping")
	submitCmd.Flags().StringVar(&submitMetricsFile, "metrics", "", "path to a JSON or YAML result-metrics mapping")
	submitCmd.Flags().StringVar(&submitReport, "report", "", "path to the pipeline report")
	submitCmd.Flags().StringVarP(&submitOutputs, "output", "o", "", "path to the pipeline outputs folder")
	submitCmd.Flags().StringVarP(&submitServer, "server", "s", "", "server the analysis is filed under: mscape or synthscape (required)")
	submitCmd.Flags().StringVar(&submitLocal, "local", "", "write the record to a local JSON document instead of Onyx")
	submitCmd.Flags().BoolVarP(&submitDryRun, "dry-run", "d", false, "exercise the Onyx write path without persisting")
	_ = submitCmd.MarkFlagRequired("name")
	_ = submitCmd.MarkFlagRequired("pipeline")
	_ = submitCmd.MarkFlagRequired("result")
	_ = submitCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(submitCmd)
}
