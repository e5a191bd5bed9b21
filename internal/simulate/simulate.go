// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/veescrow"
	"github.com/blinklabs-io/veescrow/internal/config"
	"github.com/blinklabs-io/veescrow/internal/scenario"
	"github.com/blinklabs-io/veescrow/token"
	"github.com/blinklabs-io/veescrow/units"
)

// Options translates the loaded configuration into System options
func Options(
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
) ([]veescrow.ConfigOptionFunc, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []veescrow.ConfigOptionFunc{
		veescrow.WithLogger(logger),
		veescrow.WithPrometheusRegistry(reg),
		veescrow.WithEscrowMetadata(
			cfg.EscrowName,
			cfg.EscrowSymbol,
			cfg.EscrowVersion,
		),
		veescrow.WithEscrowPeriods(cfg.Week, cfg.MaxTime),
		veescrow.WithRatio(cfg.Ratio()),
		veescrow.WithBonusBps(cfg.BonusBps),
		veescrow.WithChainID(cfg.ChainID),
		veescrow.WithTracing(cfg.Tracing),
		veescrow.WithTracingStdout(cfg.TracingStdout),
		veescrow.WithShutdownTimeout(shutdownTimeout),
	}
	if cfg.Admin != "" {
		opts = append(opts, veescrow.WithAdmin(common.HexToAddress(cfg.Admin)))
	}
	if cfg.RewardSigner != "" {
		opts = append(
			opts,
			veescrow.WithRewardSigner(common.HexToAddress(cfg.RewardSigner)),
		)
	}
	if cfg.SupplyCap > 0 {
		opts = append(
			opts,
			veescrow.WithSupplyCap(
				units.TokenAmount(cfg.SupplyCap, token.DaoTokenDecimals),
			),
		)
	}
	if cfg.SourceLockEnd > 0 {
		opts = append(opts, veescrow.WithSourceLockEnd(cfg.SourceLockEnd))
	}
	return opts, nil
}

// RunScenario plays the scenario at path against a fresh System and logs
// each step
func RunScenario(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
	path string,
) ([]scenario.StepResult, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	opts, err := Options(cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	runner, err := scenario.NewRunner(sc, logger, opts...)
	if err != nil {
		return nil, err
	}
	results, runErr := runner.Run(ctx)
	for _, res := range results {
		attrs := []any{
			"component", "simulate",
			"step", res.Index,
			"op", res.Op,
			"time", res.Time,
		}
		if res.Account != "" {
			attrs = append(attrs, "account", res.Account)
		}
		if res.Value != nil {
			attrs = append(attrs, "value", res.Value.Dec())
		}
		if res.Err != nil {
			attrs = append(attrs, "expected_error", res.Err.Error())
		}
		logger.Info("step complete", attrs...)
	}
	if err := runner.Stop(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return results, runErr
}

// Run plays the scenario and, when a metrics port is configured, keeps
// serving the resulting metrics until interrupted
func Run(cfg *config.Config, logger *slog.Logger, path string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	results, err := RunScenario(context.Background(), cfg, logger, reg, path)
	if err != nil {
		return err
	}
	logger.Info(
		fmt.Sprintf("scenario complete: %d steps", len(results)),
		"component", "simulate",
	)
	if cfg.MetricsPort == 0 {
		return nil
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	// Metrics listener
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	logger.Info(
		"serving prometheus metrics on "+addr,
		"component", "simulate",
	)
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("failed to start metrics listener: %w", err)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	select {
	case err := <-errChan:
		return err
	case <-signalCtx.Done():
		logger.Info("signal received, stopping metrics listener")
	}
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}
