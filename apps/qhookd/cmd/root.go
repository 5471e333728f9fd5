package cmd

import (
	"fmt"
	"os"

	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qscript"
	"github.com/spf13/cobra"
)

var (
	scriptsFile string
	baseDir     string
	rootCmd     = &cobra.Command{
		Use:   "qhookd",
		Short: "Run configured scripts from webhooks, background jobs and cron schedules",
		Long: `qhookd serves an HTTP API that runs scripts named in its script
configuration. Each request is checked against the script's access key,
allowed HTTP method, caller addresses and time frames before the script is
located in its handler's directory and run under a concurrency limit and a
timeout. Scripts can also be queued as background jobs or run on recurring
cron schedules.`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scriptsFile, "scripts", "", "script configuration file (YAML or JSON). Defaults to $SCRIPTS_CONFIG, then qhook.yaml, qhook.yml, qhook.json")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "directory relative scriptsLocation values resolve against. Defaults to $SCRIPTS_BASE_DIR, then the working directory")
}

// cliLogger follows LOG_LEVEL and LOG_FORMAT for commands that do not load
// the full server environment.
func cliLogger() *qlog.Logger {
	return qlog.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadScripts loads and validates the script configuration, logging
// warnings. Flags take precedence over the given defaults.
func loadScripts(defaultFile, defaultBaseDir string, logger *qlog.Logger) (*qscript.Config, string, error) {
	file := firstNonEmpty(scriptsFile, defaultFile, os.Getenv("SCRIPTS_CONFIG"))
	dir := firstNonEmpty(baseDir, defaultBaseDir, os.Getenv("SCRIPTS_BASE_DIR"))

	cfg, err := qscript.Load(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load script configuration: %w", err)
	}
	warnings, err := cfg.Validate(dir)
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}
