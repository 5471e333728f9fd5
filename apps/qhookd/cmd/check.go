package cmd

import (
	"fmt"
	"time"

	"github.com/quatton/qhook/pkg/qcron"
	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the script configuration",
	Long: `Loads the script configuration, reports every problem at once and
prints each handler's resolved scripts directory and recurring schedule.
Nothing is created on disk.`,
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

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ script configuration is valid (%d handlers)\n", len(cfg.Handlers))
		for i := range cfg.Handlers {
			h := &cfg.Handlers[i]
			fmt.Fprintf(out, "  .%s → %s in %s\n", h.FileExtension, h.ProcessName, d.Root(h))
			for j := range h.ScriptsMapping {
				m := &h.ScriptsMapping[j]
				if m.RecurringSchedule == "" {
					continue
				}
				next := "?"
				if s, err := qcron.Parse(m.RecurringSchedule); err == nil {
					next = s.Next(time.Now()).Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "    ⏱ %s %q (next %s)\n", h.RecurringID(m), m.RecurringSchedule, next)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
