// Command ledamatch runs the crossmatch batch driver against one raw
// ingest table: classify every record against the canonical catalog and,
// optionally, write the verdicts back through the admin API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/ledamatch/internal/adminapi"
	"github.com/ashita-ai/ledamatch/internal/config"
	"github.com/ashita-ai/ledamatch/internal/crossmatch"
	"github.com/ashita-ai/ledamatch/internal/logging"
	"github.com/ashita-ai/ledamatch/internal/pipeline"
	"github.com/ashita-ai/ledamatch/internal/storage"
	"github.com/ashita-ai/ledamatch/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	root := &cobra.Command{
		Use:     "ledamatch",
		Short:   "Crossmatch ingested catalog records against the canonical catalog",
		Version: version,
	}
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRunCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one crossmatch pass over a raw table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				os.Setenv("LEDAMATCH_CONFIG_FILE", cfgFile)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runPipeline(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to an optional TOML config overlay (overrides LEDAMATCH_CONFIG_FILE)")
	return cmd
}

func runPipeline(ctx context.Context, cfg config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFile)

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("ledamatch: init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("ledamatch: connect to store: %w", err)
	}
	defer db.Close()

	if err := db.RegisterPoolMetrics(); err != nil {
		logger.Warn("failed to register pool metrics", "error", err)
	}

	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}

	var sink pipeline.Sink
	if cfg.Write {
		sink = adminapi.NewClient(adminapi.Config{
			BaseURL: cfg.AdminAPIURL,
			AgentID: cfg.AdminAgentID,
			APIKey:  cfg.AdminAPIKey,
		})
	}

	driver := pipeline.New(db, sink, resolver, logger)

	opts := pipeline.Options{
		TableName: cfg.TableName,
		BatchSize: cfg.BatchSize,
		Write:     cfg.Write,
	}
	if cfg.PrintPending {
		opts.PendingWriter = func(v crossmatch.Verdict) {
			fmt.Println(pendingLine(v))
		}
	}

	logger.Info("ledamatch starting",
		"version", version,
		"table", cfg.TableName,
		"resolver", cfg.Resolver,
		"write", cfg.Write,
	)

	summary, err := driver.Run(ctx, opts)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ledamatch: run: %w", err)
	}

	printSummary(summary)
	logger.Info("ledamatch stopped", "total_records", summary.Total)
	return nil
}

func buildResolver(cfg config.Config) (crossmatch.Resolver, error) {
	switch cfg.Resolver {
	case config.ResolverIdentity:
		return crossmatch.NewIdentityResolver(config.ArcsecToDeg(cfg.RadiusArcsec), cfg.PGCColumn), nil
	case config.ResolverTwoRadii:
		return crossmatch.NewTwoRadiiResolver(
			config.ArcsecToDeg(cfg.InnerRadiusArcsec),
			config.ArcsecToDeg(cfg.OuterRadiusArcsec),
			cfg.RedshiftTolerance,
		), nil
	default:
		return nil, fmt.Errorf("ledamatch: unknown resolver %q", cfg.Resolver)
	}
}

// pendingLine renders one pending-triage verdict as
// "<record_id> <reason> [pgc: N | pgcs: N,N,…]", per spec §6.
func pendingLine(v crossmatch.Verdict) string {
	line := v.RecordID
	if v.Reason != "" {
		line += " " + string(v.Reason)
	}
	switch {
	case len(v.CollidingPGCs) > 0:
		sorted := append([]int64(nil), v.CollidingPGCs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		pgcs := make([]string, len(sorted))
		for i, pgc := range sorted {
			pgcs[i] = strconv.FormatInt(pgc, 10)
		}
		line += " pgcs: " + strings.Join(pgcs, ",")
	case v.MatchedPGC != nil:
		line += " pgc: " + strconv.FormatInt(*v.MatchedPGC, 10)
	}
	return line
}

// printSummary renders the tallied verdicts as a right-aligned table
// sorted by descending count. Total records printed first since it is
// the one number an operator glances at before the breakdown.
func printSummary(s pipeline.Summary) {
	fmt.Printf("Total records: %d\n", s.Total)
	if len(s.Rows) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "STATUS\tTRIAGE\tREASON\tCOUNT")
	for _, r := range s.Rows {
		reason := string(r.Reason)
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Status, r.Triage, reason, r.Count)
	}
	w.Flush()
}
