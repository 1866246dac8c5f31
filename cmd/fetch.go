package main

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/climb-tre/onyx-analysis-cli/internal/analysis"
)

var (
	fetchID     string
	fetchServer string
	fetchOutput string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch an existing analysis from Onyx",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("run_id", uuid.NewString()))

		server := analysis.Server(fetchServer)
		if !server.Valid() {
			return eris.Errorf("unknown server %q", fetchServer)
		}

		rec := analysis.New()
		rec.SetRetryPolicy(retryPolicy(cfg.Retry))

		result, exitcode := rec.ReadRemote(ctx, newOnyxClient(), fetchID, server)
		if exitcode != analysis.ExitOK {
			return eris.New("analysis fetch failed")
		}

		log.Info("analysis fetched",
			zap.String("analysis_id", fetchID),
			zap.String("server", string(server)),
			zap.Int("fields", len(result)),
		)

		if fetchOutput != "" {
			if err := rec.WriteLocalDocument(fetchOutput); err != nil {
				return err
			}
			log.Info("analysis written to local document", zap.String("path", fetchOutput))
		}

		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchID, "id", "", "analysis ID to fetch (required)")
	fetchCmd.Flags().StringVarP(&fetchServer, "server", "s", "", "server to fetch from: mscape or synthscape (required)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "optional path to persist the fetched record as JSON")
	_ = fetchCmd.MarkFlagRequired("id")
	_ = fetchCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(fetchCmd)
}
