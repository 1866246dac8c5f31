package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/climb-tre/onyx-analysis-cli/internal/config"
	"github.com/climb-tre/onyx-analysis-cli/internal/resilience"
	"github.com/climb-tre/onyx-analysis-cli/pkg/onyx"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "onyx-analysis",
	Short: "Submit and fetch Onyx analysis records",
	Long:  "Builds a record describing a bioinformatics pipeline run and submits it to the Onyx metadata service, or persists and reloads it as a local JSON document.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newOnyxClient builds the service client from the loaded configuration.
func newOnyxClient() onyx.Client {
	return onyx.NewClient(cfg.Onyx.Domain, cfg.Onyx.Token,
		onyx.WithRateLimit(cfg.Onyx.RateLimit),
		onyx.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Onyx.TimeoutSecs) * time.Second,
		}),
	)
}

// retryPolicy builds the remote-call retry policy from configuration.
func retryPolicy(rc config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: rc.MaxAttempts,
		Delay:       time.Duration(rc.DelaySecs) * time.Second,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
