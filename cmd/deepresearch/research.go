package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/deepresearch/internal/app"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/metrics"
	"github.com/hyperifyio/deepresearch/internal/orchestrator"
	"github.com/hyperifyio/deepresearch/internal/research"
)

func newResearchCmd() *cobra.Command {
	var (
		maxSources   int
		style        string
		pdfOut       bool
		timeout      time.Duration
		metricsAddr  string
		continuous   bool
		forceRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Run a full research cycle for query and print the resulting report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			cfg := loadConfig()
			reg := metrics.NewRegistry()
			if metricsAddr != "" {
				stopMetrics := serveMetrics(cmd, metricsAddr, reg)
				defer stopMetrics()
			}
			o := buildOrchestrator(cfg, reg)
			if maxSources > 0 {
				o.MaxSources = maxSources
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			requestID, err := o.StartResearchWithOptions(ctx, query, orchestrator.RunOptions{
				ContinuousMode: continuous,
				ForceRefresh:   forceRefresh,
				MaxSources:     maxSources,
			})
			if err != nil {
				return fmt.Errorf("start research: %w", err)
			}

			updates, unsubscribe, err := o.SubscribeProgress(requestID)
			if err != nil {
				return fmt.Errorf("subscribe progress: %w", err)
			}
			defer unsubscribe()

			go func() {
				<-ctx.Done()
				if ctx.Err() != nil {
					_ = o.Cancel(requestID)
				}
			}()

			printProgress(cmd, requestID, updates, o)

			result, err := o.GetResults(requestID)
			if err != nil {
				return fmt.Errorf("get results: %w", err)
			}

			citeStyle := citation.ParseStyle(style)
			if citeStyle != citation.APA {
				result.Citations = result.Citations[:0]
				for _, src := range result.Sources {
					result.Citations = append(result.Citations, citation.Format(citeStyle, src))
				}
				result.Bibliography = citation.Bibliography(citeStyle, result.Citations)
			}

			if err := persistResult(cfg, query, result); err != nil {
				warnf(cmd, "persist results: %v", err)
			}
			if pdfOut {
				path := app.ReportOutputPath(cfg, requestID, query)
				pdfPath := strings.TrimSuffix(path, ".md") + ".pdf"
				if err := app.WriteReportPDF(result, pdfPath); err != nil {
					warnf(cmd, "write pdf: %v", err)
				}
			}

			printResult(cmd, result)

			if result.Status == research.StatusFailed {
				return errors.New("research run failed: " + strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSources, "max-sources", 0, "override the maximum number of sources to scrape")
	cmd.Flags().StringVar(&style, "style", "apa", "citation style: apa, mla, chicago, harvard, ieee")
	cmd.Flags().BoolVar(&pdfOut, "pdf", false, "also write a PDF rendering of the report")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort and cancel the run after this duration (0 disables)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run's duration (e.g. :9090)")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "process every focus area instead of only the first")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "bypass the query-result cache even if a fresh entry exists")
	return cmd
}

// serveMetrics mounts reg behind promhttp on addr for the lifetime of one
// research run, since this CLI has no long-running daemon to host it
// otherwise. The returned func shuts the listener down.
func serveMetrics(cmd *cobra.Command, addr string, reg *metrics.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			warnf(cmd, "metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printProgress drains updates until the run reaches a terminal status,
// rendering a progress bar and one colored line per update on stderr,
// and polling GetStatus between updates so it also stops when the
// terminal update is missed.
func printProgress(cmd *cobra.Command, requestID string, updates <-chan research.ProgressUpdate, o interface {
	GetStatus(string) (research.StatusSnapshot, error)
}) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("researching"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionClearOnFinish(),
	)
	green := color.New(color.FgGreen)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = bar.Set(update.ProgressPercent)
			green.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", update.FocusArea, update.Message)
			if update.Status.Terminal() {
				_ = bar.Finish()
				return
			}
		case <-time.After(pollInterval):
			status, err := o.GetStatus(requestID)
			if err == nil && status.Status.Terminal() {
				_ = bar.Finish()
				return
			}
		}
	}
}

func printResult(cmd *cobra.Command, result research.ResearchResult) {
	out := cmd.OutOrStdout()
	if result.CacheHit {
		fmt.Fprintf(out, "# Research report (%s, cached)\n\n", result.Status)
	} else {
		fmt.Fprintf(out, "# Research report (%s)\n\n", result.Status)
	}
	fmt.Fprintln(out, result.Summary)
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.Bibliography)
}

func persistResult(cfg app.Config, query string, result research.ResearchResult) error {
	path := app.ResultsJSONPath(cfg, result.RequestID, query)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: "+format+"\n", args...)
}
