package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/config"
	"github.com/efebarandurmaz/hoist/internal/depgraph"
	neo4jgraph "github.com/efebarandurmaz/hoist/internal/graph/neo4j"
	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/logging"
	"github.com/efebarandurmaz/hoist/internal/observability"
	"github.com/efebarandurmaz/hoist/internal/pipeline"
	"github.com/efebarandurmaz/hoist/internal/secrets"
	"github.com/efebarandurmaz/hoist/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// shutdownGrace bounds how long serve waits for its shutdown hooks.
const shutdownGrace = 45 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "hoist",
		Short:         "Module concatenation for bundled module graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	var (
		inputPath  string
		reportFmt  string
		exportFmt  string
		exportOut  string
		metricsOut string
	)
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Concatenate modules and print the pass report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd.Context(), configPath, optimizeOptions{
				input:      inputPath,
				report:     reportFmt,
				export:     exportFmt,
				exportOut:  exportOut,
				metricsOut: metricsOut,
			}, cmd.OutOrStdout())
		},
	}
	optimizeCmd.Flags().StringVar(&inputPath, "input", "", "Graph document (.json, .yaml)")
	optimizeCmd.Flags().StringVar(&reportFmt, "report", "", "Report format: json or text (default from config)")
	optimizeCmd.Flags().StringVar(&exportFmt, "export", "", "Also export the optimized graph: dot, mermaid or json")
	optimizeCmd.Flags().StringVar(&exportOut, "export-out", "", "Write the export to a file instead of stdout")
	optimizeCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to a file")
	_ = optimizeCmd.MarkFlagRequired("input")

	var (
		explainInput  string
		explainModule string
	)
	explainCmd := &cobra.Command{
		Use:   "explain",
		Short: "Show why modules were not concatenated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), configPath, explainInput, explainModule, cmd.OutOrStdout())
		},
	}
	explainCmd.Flags().StringVar(&explainInput, "input", "", "Graph document (.json, .yaml)")
	explainCmd.Flags().StringVar(&explainModule, "module", "", "Module id (default: every module with bailouts)")
	_ = explainCmd.MarkFlagRequired("input")

	var (
		exportInput  string
		exportFormat string
		exportOutput string
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a module graph without optimizing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), configPath, exportInput, exportFormat, exportOutput, cmd.OutOrStdout())
		},
	}
	exportCmd.Flags().StringVar(&exportInput, "input", "", "Graph document (.json, .yaml)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Export format: "+strings.Join(depgraph.Formats, ", ")+" (default from config, else dot)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("input")

	var (
		addr         string
		serveMetrics string
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the optimization service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr, serveMetrics)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics-out", "", "Write Prometheus metrics to a file on shutdown")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "hoist", version)
		},
	}

	rootCmd.AddCommand(optimizeCmd, explainCmd, exportCmd, serveCmd, versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what every command sets up from the configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracer  *observability.TracerProvider
	metrics *observability.Metrics
	repo    *neo4jgraph.Neo4jRepository // nil without graph.uri
}

func newApp(ctx context.Context, configPath string, connectStore bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}

	a := &app{
		cfg:     cfg,
		logger:  logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr),
		metrics: observability.NewMetrics(),
	}
	slog.SetDefault(a.logger)

	a.tracer, err = observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    os.Getenv("HOIST_ENVIRONMENT"),
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Audit.Enabled {
		err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Audit.OutputPath,
			SessionID:  uuid.NewString(),
			UserID:     os.Getenv("USER"),
		})
		if err != nil {
			return nil, fmt.Errorf("init audit log: %w", err)
		}
	}

	if connectStore && cfg.Graph.URI != "" {
		password, err := resolvePassword(ctx, cfg)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.repo, err = neo4jgraph.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, password, cfg.Graph.Database)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("connect graph store: %w", err)
		}
		a.logger.Info("graph store connected", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
	}
	return a, nil
}

// resolvePassword returns the graph store password, following a
// "secret:<key>" reference through the configured secrets provider.
func resolvePassword(ctx context.Context, cfg *config.Config) (string, error) {
	m, err := secrets.NewManager(&secrets.Config{
		Provider:  cfg.Secrets.Provider,
		Path:      cfg.Secrets.Path,
		EnvPrefix: "HOIST_",
	})
	if err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	password, err := m.Resolve(ctx, cfg.Graph.Password)
	if err != nil {
		return "", fmt.Errorf("graph password: %w", err)
	}
	return password, nil
}

func (a *app) runner() *pipeline.Runner {
	r := &pipeline.Runner{
		Optimizer: concat.NewOptimizer(&concat.OptimizerConfig{
			Workers:           a.cfg.Optimization.Workers,
			ExplainStandalone: a.cfg.Optimization.ExplainStandalone,
			Logger:            a.logger,
			Metrics:           a.metrics,
		}),
		Audit:  observability.Audit(),
		Logger: a.logger,
	}
	if a.repo != nil {
		r.Repository = a.repo
	}
	return r
}

func (a *app) close(ctx context.Context) {
	if a.repo != nil {
		if err := a.repo.Close(ctx); err != nil {
			a.logger.Warn("closing graph store", "error", err)
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutting down tracing", "error", err)
	}
	if err := observability.Audit().Close(); err != nil {
		a.logger.Warn("closing audit log", "error", err)
	}
}

func (a *app) loadGraph(ctx context.Context, path string) (*ir.ModuleGraph, *ir.ChunkGraph, error) {
	start := time.Now()
	mg, cg, err := ir.LoadDocument(path)
	if err != nil {
		return nil, nil, err
	}
	n := len(mg.ModuleIDs())
	observability.Audit().LogGraphLoad(ctx, path, n, time.Since(start))
	a.logger.Debug("graph loaded", "path", path, "modules", n, "chunks", len(cg.ChunkIDs()))
	return mg, cg, nil
}

type optimizeOptions struct {
	input      string
	report     string
	export     string
	exportOut  string
	metricsOut string
}

func runOptimize(ctx context.Context, configPath string, opts optimizeOptions, stdout io.Writer) error {
	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if opts.report == "" {
		opts.report = a.cfg.Report.Format
	}
	if opts.export == "" {
		opts.export = a.cfg.Report.Export
	}

	mg, cg, err := a.loadGraph(ctx, opts.input)
	if err != nil {
		return err
	}
	out, err := a.runner().Run(ctx, mg, cg, pipeline.Options{
		Source:      opts.input,
		Concatenate: a.cfg.Optimization.ConcatenateModules,
		Export:      opts.export,
		ExportPath:  opts.exportOut,
	})
	if err != nil {
		return err
	}

	if out.Export != nil {
		if opts.exportOut == "" {
			if _, err := stdout.Write(out.Export); err != nil {
				return err
			}
		} else if err := os.WriteFile(opts.exportOut, out.Export, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}
	if opts.metricsOut != "" {
		if err := writeMetrics(a.metrics, opts.metricsOut); err != nil {
			return err
		}
	}

	// Keep stdout clean for the export when it goes there
	reportOut := stdout
	if out.Export != nil && opts.exportOut == "" {
		reportOut = os.Stderr
	}
	return out.Report.Write(reportOut, opts.report)
}

func runExplain(ctx context.Context, configPath, input, module string, stdout io.Writer) error {
	a, err := newApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	mg, cg, err := a.loadGraph(ctx, input)
	if err != nil {
		return err
	}
	if module != "" && !mg.HasModule(ir.ModuleID(module)) {
		return fmt.Errorf("module %s: %w", module, ir.ErrModuleNotFound)
	}
	out, err := a.runner().Run(ctx, mg, cg, pipeline.Options{Source: input, Concatenate: true})
	if err != nil {
		return err
	}
	return explain(stdout, mg, out.Result, module)
}

// explain prints the bailout log of one module, or of every module that
// has one.
func explain(w io.Writer, mg *ir.ModuleGraph, res *concat.Result, module string) error {
	mergedInto := make(map[ir.ModuleID]ir.ModuleID)
	for _, c := range res.Configurations {
		for _, m := range c.Members {
			mergedInto[m] = c.Merged
		}
	}

	ids := mg.ModulesWithBailouts()
	if module != "" {
		ids = []ir.ModuleID{ir.ModuleID(module)}
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintln(w, "No module has bailouts.")
		return err
	}

	for i, id := range ids {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, id)
		if merged, ok := mergedInto[id]; ok {
			fmt.Fprintf(w, "  concatenated into %s\n", merged)
		}
		bailouts := mg.Bailouts(id)
		if len(bailouts) == 0 {
			fmt.Fprintln(w, "  no bailouts")
			continue
		}
		for _, b := range bailouts {
			if _, err := fmt.Fprintf(w, "  - %s\n", b); err != nil {
				return err
			}
		}
	}
	return nil
}

func runExport(ctx context.Context, configPath, input, format, output string, stdout io.Writer) error {
	a, err := newApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if format == "" {
		format = a.cfg.Report.Export
	}
	if format == "" {
		format = depgraph.FormatDOT
	}

	mg, cg, err := a.loadGraph(ctx, input)
	if err != nil {
		return err
	}
	out, err := a.runner().Run(ctx, mg, cg, pipeline.Options{Source: input, Export: format, ExportPath: output})
	if err != nil {
		return err
	}
	if output == "" {
		_, err = stdout.Write(out.Export)
		return err
	}
	if err := os.WriteFile(output, out.Export, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	a.logger.Info("graph exported", "format", format, "path", output, "bytes", len(out.Export))
	return nil
}

func runServe(ctx context.Context, configPath, addr, metricsOut string) error {
	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}

	srv := server.New(&server.Config{
		Addr:        addr,
		Version:     version,
		Concatenate: a.cfg.Optimization.ConcatenateModules,
		Logger:      a.logger,
	}, a.runner(), a.metrics.Registry())

	srv.Shutdown.Register(server.TracingShutdownHook(a.tracer.Shutdown))
	srv.Shutdown.Register(server.AuditLoggerShutdownHook(observability.Audit().Close))
	if metricsOut != "" {
		srv.Shutdown.Register(server.MetricsShutdownHook(func(context.Context) error {
			return writeMetrics(a.metrics, metricsOut)
		}))
	}
	if a.repo != nil {
		srv.Health.RegisterCheck("graph-store", server.GraphStoreHealthChecker(a.repo.Ping))
		srv.Shutdown.Register(server.GraphStoreShutdownHook(a.repo.Close))
	}

	if err := srv.Start(); err != nil {
		a.close(ctx)
		return err
	}
	if err := srv.Wait(shutdownGrace); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func writeMetrics(m *observability.Metrics, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := m.WriteText(f); err != nil {
		f.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	return f.Close()
}
