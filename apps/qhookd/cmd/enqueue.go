package cmd

import (
	"fmt"
	"strings"

	"github.com/quatton/qhook/pkg/qapi/config"
	"github.com/quatton/qhook/pkg/qapi/services"
	"github.com/quatton/qhook/pkg/qjobs"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qscript"
	"github.com/spf13/cobra"
)

var enqueueKey string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <script> [-- parameters...]",
	Short: "Queue a script as a background job for a running server",
	Long: `Stores a job in the shared job backend so the workers of a running
qhookd serve pick it up. Requires STORE_BACKEND=redis, or postgres with
REDIS_ADDR set; the in-process backends are not shared between processes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ValidateEnv()
		if err != nil {
			return err
		}
		if cfg.StoreBackend == config.BackendMemory || (cfg.StoreBackend == config.BackendPostgres && cfg.RedisAddr == "") {
			return fmt.Errorf("enqueue needs a shared queue: set STORE_BACKEND=redis or REDIS_ADDR")
		}

		logger := qlog.New(cfg.LogLevel, cfg.LogFormat)
		scripts, dir, err := loadScripts(cfg.ScriptsConfig, cfg.ScriptsBaseDir, logger)
		if err != nil {
			return err
		}
		cfg.ScriptsBaseDir = dir

		ctx := cmd.Context()
		svcs, err := services.NewServices(ctx, cfg, scripts, logger)
		if err != nil {
			return err
		}
		defer svcs.Close() //nolint:errcheck

		req := qscript.Request{
			Script:     args[0],
			Key:        enqueueKey,
			Parameters: strings.Join(args[1:], " "),
		}
		if req.Key == "" {
			h, m := scripts.Lookup(req.Script)
			req.Key = scripts.ResolveKey(h, m)
		}
		if err := exitIfRejected(svcs.Hook.Admit(req, nil)); err != nil {
			return err
		}

		id, err := svcs.Jobs.Enqueue(ctx, req, qjobs.SourceCLI)
		if err != nil {
			return fmt.Errorf("failed to enqueue job: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVarP(&enqueueKey, "key", "k", "", "access key (defaults to the key configured for the script)")
}
