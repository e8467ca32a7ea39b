package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/api"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/config"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/health"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/solver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:          "shadowswap-solver",
		Short:        "Intent matching and settlement solver",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().String("env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, notice, error)")
	addServeFlags(root.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the solver API, settlement pipeline and operator server",
		RunE:  runServe,
	}
	addServeFlags(serveCmd.Flags())
	root.AddCommand(serveCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check router authorization and solver balance, then exit",
		RunE:  runVerify,
	}
	root.AddCommand(verifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.String("port", "", "API port override")
	fs.String("metrics-port", "", "operator server port override")
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	var envFiles []string
	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		envFiles = append(envFiles, envFile)
	}

	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags.Changed("log-level") {
		cfg.LoggerConfig.Level, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		cfg.HTTPPort = f.Value.String()
	}
	if f := flags.Lookup("metrics-port"); f != nil && f.Changed {
		cfg.MetricsPort = f.Value.String()
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, func(), error) {
	log, err := logger.New(cfg.LoggerConfig.Options())
	if err != nil {
		return nil, nil, err
	}
	sync := func() {}
	if s, ok := log.(interface{ Sync() error }); ok {
		sync = func() { _ = s.Sync() }
	}
	return log, sync, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	log, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := solver.NewService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create solver service: %w", err)
	}

	report := service.StartupChecks(ctx)
	if !report.Authorized {
		log.Error("Solver %s is not the router's authorized solver; settlements will revert", report.Solver)
	}

	apiServer := api.NewServer(api.Config{
		Port:            cfg.HTTPPort,
		CORSOrigin:      cfg.CORSOrigin,
		SubmitPerMinute: float64(cfg.SubmitRateLimit),
		SubmitBurst:     cfg.SubmitRateBurst,
	}, service, log)
	healthServer := health.NewServer(cfg.MetricsPort, cfg.MetricsAPIKey, service, service.Breaker(), log)

	errCh := make(chan error, 2)
	go func() { errCh <- apiServer.Start() }()
	go func() { errCh <- healthServer.Start() }()

	serviceDone := make(chan struct{})
	go func() {
		service.Start(ctx)
		close(serviceDone)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Received termination signal, shutting down gracefully...")
	case serveErr = <-errCh:
		log.Error("Server failed: %v", serveErr)
		stop()
	}

	// in-flight submissions settle both legs before their handlers return
	drain := shutdownTimeout + cfg.SettlementDelay + 2*cfg.ConfirmationTimeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown: %v", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown: %v", err)
	}
	<-serviceDone
	return serveErr
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	log, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	service, err := solver.NewService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create solver service: %w", err)
	}
	defer service.Close()

	report := service.StartupChecks(ctx)
	balance := "unknown"
	if report.Balance != nil {
		balance = report.Balance.String()
	}
	fmt.Printf("solver:     %s\nauthorized: %t\nbalance:    %s wei\n", report.Solver, report.Authorized, balance)
	if report.LowBalance {
		fmt.Printf("warning:    balance below %s wei\n", cfg.MinSolverBalance)
	}
	if !report.Authorized {
		return errors.New("solver is not authorized on the router")
	}
	return nil
}
