package analysis

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/climb-tre/onyx-analysis-cli/internal/resilience"
	"github.com/climb-tre/onyx-analysis-cli/pkg/onyx"
)

// Exit codes returned by the remote operations. Failures are absorbed and
// logged here; no error from an Onyx call ever reaches the caller.
const (
	ExitOK   = 0
	ExitFail = 1
)

// WriteRemote submits the full field set as a new analysis under server.
// When dryRun is true the service exercises the write path without
// persisting. Returns the service result (analysis identifiers, or an
// empty document on a dry run) and ExitOK, or (nil, ExitFail).
func (r *Record) WriteRemote(ctx context.Context, client onyx.Client, server Server, dryRun bool) (map[string]any, int) {
	r.ValidateRequiredFields()

	fields := r.Fields()
	return r.callOnyx(ctx, "create analysis", func(ctx context.Context) (map[string]any, error) {
		return client.CreateAnalysis(ctx, string(server), fields, dryRun)
	})
}

// ReadRemote fetches an existing analysis from server and applies its
// fields to the record, filtering unknown keys exactly as the local read
// path does. Returns the raw fetched mapping and ExitOK, or (nil, ExitFail)
// with the record untouched.
func (r *Record) ReadRemote(ctx context.Context, client onyx.Client, analysisID string, server Server) (map[string]any, int) {
	result, exitcode := r.callOnyx(ctx, "get analysis", func(ctx context.Context) (map[string]any, error) {
		return client.GetAnalysis(ctx, string(server), analysisID)
	})
	if exitcode != ExitOK {
		return nil, exitcode
	}

	r.applyFields(result)
	return result, ExitOK
}

// callOnyx runs one remote operation under the record's retry policy and
// converts every failure kind into a logged (nil, ExitFail) outcome.
// Connection failures are retried up to the policy bound; configuration,
// client, and service-reported failures are terminal on first occurrence.
func (r *Record) callOnyx(ctx context.Context, op string, fn func(ctx context.Context) (map[string]any, error)) (map[string]any, int) {
	p := r.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.RetryLogger("onyx", op)
	}

	result, err := resilience.DoVal(ctx, p, fn)
	if err == nil {
		zap.L().Debug("onyx call succeeded", zap.String("operation", op))
		return result, ExitOK
	}

	var (
		connErr   *onyx.ConnectionError
		configErr *onyx.ConfigError
		clientErr *onyx.ClientError
		httpErr   *onyx.HTTPError
	)
	switch {
	case errors.As(err, &connErr):
		zap.L().Error("onyx connection failed, retries exhausted",
			zap.String("operation", op),
			zap.Int("attempts", p.MaxAttempts),
			zap.Error(err),
		)
	case errors.As(err, &configErr):
		zap.L().Error("onyx config error, check domain and token credentials",
			zap.String("operation", op),
			zap.Error(err),
		)
	case errors.As(err, &clientErr):
		zap.L().Error("onyx client error, check call arguments",
			zap.String("operation", op),
			zap.Error(err),
		)
	case errors.As(err, &httpErr):
		zap.L().Error("onyx returned an error response",
			zap.String("operation", op),
			zap.Int("status", httpErr.StatusCode),
			zap.Any("body", httpErr.Body),
		)
	default:
		zap.L().Error("unhandled onyx error",
			zap.String("operation", op),
			zap.Error(err),
		)
	}

	return nil, ExitFail
}
