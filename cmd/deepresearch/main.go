// Command deepresearch is the CLI surface for the research automation
// engine's public operations: research, status, results,
// cancel, cite, each a cobra subcommand over internal/orchestrator.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/deepresearch/internal/app"
)

var (
	envFiles   []string
	configFile string
	cacheDir   string
	reportDir  string
	verbose    bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := &cobra.Command{
		Use:           "deepresearch",
		Short:         "Decompose a question, search and scrape the web, and synthesize a cited report.",
		Version:       fmt.Sprintf("%s (%s, %s)", app.BuildVersion, app.BuildCommit, app.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "dotenv file to load before environment variables (repeatable)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML or JSON config file supplying defaults below env and flags")
	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "override CACHE_DIR")
	root.PersistentFlags().StringVar(&reportDir, "reports-dir", "", "directory reports and result snapshots are written to")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newResearchCmd(), newStatusCmd(), newResultsCmd(), newCancelCmd(), newCiteCmd(), newCacheCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig builds the shared Config with flags taking precedence over
// environment variables, environment over the optional --config file,
// and the file over built-in defaults. Each source only fills fields
// the earlier ones left at their zero value.
func loadConfig() app.Config {
	if err := app.LoadEnvFiles(envFiles...); err != nil {
		log.Warn().Err(err).Msg("loading env file")
	}

	cfg := app.Config{
		CacheDir:   cacheDir,
		ReportsDir: reportDir,
		Verbose:    verbose,
	}
	app.ApplyEnvToConfig(&cfg)

	if configFile != "" {
		fc, err := app.LoadConfigFile(configFile)
		if err != nil {
			log.Warn().Err(err).Str("path", configFile).Msg("loading config file")
		} else {
			app.ApplyFileConfig(&cfg, fc)
		}
	}
	app.FillDefaults(&cfg)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return cfg
}
