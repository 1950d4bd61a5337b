// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Outbound: appCfg.OutboundTimeout})
	t := timeouts.Current()

	logger.Info("mapstash starting",
		zap.String("env", coreCfg.Env),
		zap.String("blob_type", appCfg.BlobType),
		zap.String("period_timezone", appCfg.PeriodTimezone),
		zap.String("period_default_policy", appCfg.PeriodDefaultPolicy),
		zap.Bool("verify_signature", appCfg.LineVerifySignature),
		zap.Duration("timeout_short", t.Short),
		zap.Duration("timeout_medium", t.Medium),
		zap.Duration("timeout_batch", t.Batch),
		zap.Duration("outbound_timeout", t.Outbound),
	)
	return nil
}
