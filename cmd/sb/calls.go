package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

func newCallsCmd() *cobra.Command {
	var (
		configPath string
		toolFilter string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recent proxied tool calls",
		Long:  "Displays recent call records from the observability store: tool, operation, routing, status, and duration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(cmd, configPath, toolFilter, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&toolFilter, "tool", "", "filter by tool name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func runCalls(cmd *cobra.Command, configPath, toolFilter string, limit int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if !cfg.PersistenceEnabled() {
		return fmt.Errorf("call records are disabled (database.driver is %q)", cfg.Database.Driver)
	}

	gormDB, err := openStore(cfg)
	if err != nil {
		return err
	}

	records, err := recentCalls(gormDB, toolFilter, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No call records found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTOOL\tOP\tINSTANCE\tWORKER\tSTATUS\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			r.CreatedAt.Format("15:04:05"), r.Tool, r.Kind, r.InstanceID, r.WorkerID,
			r.Status, r.DurationMs, truncate(r.Error, 60))
	}
	w.Flush()
	return nil
}

// recentCalls returns up to limit records, newest first.
func recentCalls(gormDB *gorm.DB, toolFilter string, limit int) ([]models.CallRecord, error) {
	q := gormDB.Model(&models.CallRecord{}).Order("id DESC").Limit(limit)
	if toolFilter != "" {
		q = q.Where("tool = ?", toolFilter)
	}
	var records []models.CallRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	return records, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
