package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qhook"
	"github.com/quatton/qhook/pkg/qpolicy"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
	"github.com/spf13/cobra"
)

var (
	execKey     string
	execJSON    bool
	execTimeout time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec <script> [-- parameters...]",
	Short: "Run a configured script once in the foreground",
	Long: `Runs a script through the same checks as a webhook call, without the
HTTP method and caller address restrictions. When --key is omitted the key
configured for the script is used. The command exits with the script's exit
code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := cliLogger()
		cfg, dir, err := loadScripts("", "", logger)
		if err != nil {
			return err
		}
		d, err := qdispatch.New(cfg, dir)
		if err != nil {
			return err
		}

		supervisor := qrunner.New(qrunner.Options{ExecutionTimeout: execTimeout, Logger: logger})
		svc := qhook.New(cfg, qpolicy.NewChain(cfg), d, supervisor, logger)

		req := qscript.Request{
			Script:     args[0],
			Key:        execKey,
			Parameters: strings.Join(args[1:], " "),
		}
		if req.Key == "" {
			h, m := cfg.Lookup(req.Script)
			req.Key = cfg.ResolveKey(h, m)
		}

		result, err := svc.Execute(cmd.Context(), req)
		if err := exitIfRejected(err); err != nil {
			return err
		}

		if execJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), result.Output)
			fmt.Fprint(cmd.ErrOrStderr(), result.Error)
			if !result.Success {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s (%s)\n", result.Message, result.Code)
			}
		}

		if result.ExitCode != 0 {
			os.Exit(result.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execKey, "key", "k", "", "access key (defaults to the key configured for the script)")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "print the full execution result as JSON")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", qrunner.DefaultExecutionTimeout, "execution timeout")
}
