package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/deepresearch/internal/app"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/research"
)

// loadResultSnapshot reads back the ResearchResult a prior `research`
// invocation persisted for requestID. There is no long-running server
// in this CLI, so status/results/cite operate on the same on-disk
// snapshot rather than a live run.
func loadResultSnapshot(cfg app.Config, requestID string) (research.ResearchResult, error) {
	path, err := app.FindResultsJSON(cfg, requestID)
	if err != nil {
		return research.ResearchResult{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return research.ResearchResult{}, err
	}
	var result research.ResearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return research.ResearchResult{}, err
	}
	return result, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print the lifecycle status of a finished research run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadResultSnapshot(loadConfig(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s reliability=%.2f sources=%d errors=%d\n",
				result.Status, result.Reliability, len(result.Sources), len(result.Errors))
			return nil
		},
	}
}

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <request-id>",
		Short: "Print the full ResearchResult for a finished run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadResultSnapshot(loadConfig(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Request cancellation of a research run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadResultSnapshot(loadConfig(), args[0])
			if err != nil {
				return err
			}
			if result.Status.Terminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s already reached terminal status %s; nothing to cancel\n", args[0], result.Status)
				return nil
			}
			// A live run only accepts cancellation from the process that
			// started it (Ctrl+C during `research`); there is no daemon
			// here to signal out-of-process.
			return fmt.Errorf("run %s has no recorded terminal status; cancel it from the terminal running `research` (Ctrl+C)", args[0])
		},
	}
}

func newCiteCmd() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "cite <request-id>",
		Short: "Format a finished run's sources in the requested citation style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadResultSnapshot(loadConfig(), args[0])
			if err != nil {
				return err
			}
			citeStyle := citation.ParseStyle(style)
			citations := make([]string, 0, len(result.Sources))
			for _, src := range result.Sources {
				citations = append(citations, citation.Format(citeStyle, src))
			}
			out := cmd.OutOrStdout()
			for _, c := range citations {
				fmt.Fprintln(out, c)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, citation.Bibliography(citeStyle, citations))
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", "apa", "citation style: apa, mla, chicago, harvard, ieee")
	return cmd
}
