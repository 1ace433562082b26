package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/riskibarqy/manager-sync/internal/config"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/uptrace/uptrace-go/uptrace"
)

// Stack holds the process-wide telemetry hooks started at boot.
type Stack struct {
	stopTracing   func(context.Context) error
	stopProfiling func() error
	pprofServer   *http.Server
	logger        *logging.Logger
}

// Start configures trace export and profiling from cfg. Disabled parts are
// no-ops, so Shutdown is always safe to call.
func Start(cfg config.Config, logger *logging.Logger) (*Stack, error) {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Stack{
		stopTracing:   startTracing(cfg, logger),
		stopProfiling: func() error { return nil },
		logger:        logger,
	}

	stop, err := startProfiling(cfg, logger)
	if err != nil {
		_ = s.stopTracing(context.Background())
		return nil, err
	}
	s.stopProfiling = stop
	s.pprofServer = startPprof(cfg, logger)

	return s, nil
}

// Shutdown flushes spans and stops the profiler and pprof listener. All
// parts are stopped even when one fails.
func (s *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.stopTracing(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.stopProfiling(); err != nil {
		errs = append(errs, err)
	}
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Info("pprof server stopped")
		}
	}
	return errors.Join(errs...)
}

func startTracing(cfg config.Config, logger *logging.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.UptraceEnabled {
		logger.Info("uptrace disabled", "reason", "UPTRACE_ENABLED=false")
		return noop
	}
	if strings.TrimSpace(cfg.UptraceDSN) == "" {
		logger.Info("uptrace disabled", "reason", "UPTRACE_DSN empty")
		return noop
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName),
		uptrace.WithServiceVersion(cfg.ServiceVersion),
		uptrace.WithDeploymentEnvironment(cfg.AppEnv),
	)
	logger.Info("uptrace enabled",
		"service_name", cfg.ServiceName,
		"service_version", cfg.ServiceVersion,
		"environment", cfg.AppEnv,
	)
	return uptrace.Shutdown
}

// Sync runs are dominated by network waits and JSON decoding, so CPU,
// allocation and goroutine profiles are the useful ones.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

func startProfiling(cfg config.Config, logger *logging.Logger) (func() error, error) {
	if !cfg.PyroscopeEnabled {
		logger.Info("pyroscope disabled", "reason", "PYROSCOPE_ENABLED=false")
		return func() error { return nil }, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.PyroscopeAppName,
		ServerAddress:     cfg.PyroscopeServerAddress,
		AuthToken:         cfg.PyroscopeAuthToken,
		BasicAuthUser:     cfg.PyroscopeBasicAuthUser,
		BasicAuthPassword: cfg.PyroscopeBasicAuthPassword,
		UploadRate:        cfg.PyroscopeUploadRate,
		Tags: map[string]string{
			"env":     cfg.AppEnv,
			"service": cfg.ServiceName,
			"version": cfg.ServiceVersion,
		},
		ProfileTypes: profileTypes,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pyroscope enabled",
		"server_address", cfg.PyroscopeServerAddress,
		"application", cfg.PyroscopeAppName,
	)
	return profiler.Stop, nil
}

func startPprof(cfg config.Config, logger *logging.Logger) *http.Server {
	if !cfg.PprofEnabled {
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.PprofAddr,
		Handler:           pprofMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("pprof server starting", "addr", cfg.PprofAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server failed", "error", err)
		}
	}()
	return srv
}

func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
