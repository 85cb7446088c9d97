package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qrda/qrda-export/internal/config"
	"github.com/qrda/qrda-export/internal/domain/export"
	"github.com/qrda/qrda-export/internal/domain/qdm"
	"github.com/qrda/qrda-export/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "qrda-server",
		Short:        "QRDA Cat I test case export service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the export API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	tracing, err := newTracing(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	ctx := context.Background()
	d, cleanup, err := openDeps(ctx, cfg, logger, tracing.Tracer())
	defer cleanup()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open backends")
	}

	svc, err := newExportService(cfg, logger, tracing.Tracer(), d)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build export service")
	}
	e := newServer(cfg, logger, tracing.Tracer(), svc, d)

	if !cfg.AuthEnabled() {
		logger.Warn().Msg("AUTH_SIGNING_KEY is not set, /api is served without authentication")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("auth", cfg.AuthEnabled()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Export a measure DTO file to QRDA and HTML files",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			if in == "" {
				return fmt.Errorf("--in is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newExportService(cfg, logger, nil, deps{})
			if err != nil {
				return err
			}
			n, err := renderFile(ctx, svc, in, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d file(s) to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().String("in", "", "Path to the measure DTO JSON file")
	cmd.Flags().String("out", "./qrda-out", "Directory the artifacts are written to")
	return cmd
}

// renderFile runs one batch from a DTO file and writes its artifacts to
// outDir. It returns the number of files written.
func renderFile(ctx context.Context, svc *export.Service, inPath, outDir string) (int, error) {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", inPath, err)
	}
	var dto export.MeasureDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return 0, fmt.Errorf("decode %s: %w", inPath, err)
	}

	resp, err := svc.Run(ctx, &dto)
	if err != nil {
		return 0, err
	}
	return writeArtifacts(resp, outDir)
}

// writeArtifacts writes every artifact of resp into outDir. A failed file is
// reported but does not stop the remaining ones.
func writeArtifacts(resp *export.BatchResponse, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", outDir, err)
	}

	n := 0
	var errs []error
	write := func(name string, data []byte) {
		if data == nil {
			return
		}
		if name != filepath.Base(name) || name == "." || name == ".." {
			errs = append(errs, fmt.Errorf("write %q: name leaves the output directory", name))
			return
		}
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
			return
		}
		n++
	}

	for _, a := range resp.IndividualReports {
		write(a.Filename+".xml", a.Document)
		write(a.Filename+".html", a.HTML)
	}
	if resp.SummaryReport.HTML != "" {
		write("summary.html", []byte(resp.SummaryReport.HTML))
	}

	report, err := json.MarshalIndent(resp.SummaryReport, "", "  ")
	if err != nil {
		errs = append(errs, fmt.Errorf("encode summary: %w", err))
	} else {
		write("summary.json", report)
	}
	return n, errors.Join(errs...)
}

func typesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the supported data criteria types",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return printTypes(cmd.OutOrStdout(), qdm.DefaultRegistry, asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "Print the registry as JSON")
	return cmd
}

func printTypes(w io.Writer, reg *qdm.Registry, asJSON bool) error {
	kinds := reg.Kinds()
	if asJSON {
		list := make([]qdm.DataCriteria, len(kinds))
		for i, k := range kinds {
			list[i] = k.New()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tMODEL\tCATEGORY\tSTATUS")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Tag, k.Model, k.Category, k.Status)
	}
	return tw.Flush()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run history schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HistoryEnabled() {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
