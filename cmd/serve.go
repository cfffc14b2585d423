package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/taglet/internal/build"
	"github.com/conneroisu/taglet/internal/devmode"
	"github.com/conneroisu/taglet/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server with hot reload",
	Long: `Compile templates in memory and serve them, recompiling on every
change. Template errors are shown in the browser until they are fixed,
while the last good build keeps serving.

Examples:
  taglet serve                     # Serve on localhost:8080
  taglet serve -p 3000             # Serve on another port
  taglet serve --write-output      # Also keep generated Go code up to date`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-reload", false, "Disable live reload in the browser")
	serveCmd.Flags().Bool("write-output", false, "Write generated Go code after every successful build")

	viper.BindPFlag("development.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("development.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("development.write_output", serveCmd.Flags().Lookup("write-output"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.LiveReload = false
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := devmode.Options{
		Root:           cfg.Templates.Dir,
		Scan:           scannerOptions(cfg),
		Package:        cfg.Output.Package,
		CompileTimeout: cfg.Development.CompileTimeout,
		Debounce:       cfg.Development.Debounce,
		Metrics:        devmode.NewMetrics(reg),
		Logger:         logger,
	}
	if cfg.Development.WriteOutput {
		opts.OutputDir = cfg.Output.Dir
		if cfg.Development.CheckCommand != "" {
			check, err := build.NewCommandCheck(cfg.Development.CheckCommand, cfg.Output.Dir, cfg.Development.CheckTimeout)
			if err != nil {
				return fmt.Errorf("invalid check command: %w", err)
			}
			opts.Check = check
		}
	}

	orch := devmode.New(devmode.NewHandle(), opts)
	srv := server.New(orch, server.Options{
		Host:           cfg.Development.Host,
		Port:           cfg.Development.Port,
		LiveReload:     cfg.Development.LiveReload,
		AllowedOrigins: cfg.Development.AllowedOrigins,
		Gatherer:       reg,
		Registerer:     reg,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting taglet server at http://%s\n", srv.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return srv.Start(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
