package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dcmrelay/internal/ipc"
	"dcmrelay/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var route string
	var outcome string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delivery outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fetchHistory(ctx, cmd, route, outcome, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No delivery history")
				return nil
			}
			table := renderTable(
				[]string{"Time", "Route", "File", "Endpoint", "Outcome", "Duration"},
				buildHistoryRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "Filter by route name")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome (delivered|failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to show (default 50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

// fetchHistory prefers the daemon's journal view and falls back to opening
// the journal database directly when the daemon is not running.
func fetchHistory(ctx *commandContext, cmd *cobra.Command, route, outcome string, limit int) ([]ipc.DeliveryRecord, error) {
	client, dialErr := ipc.Dial(ctx.socketPath())
	if dialErr == nil {
		defer client.Close()
		resp, err := client.History(ipc.HistoryRequest{Route: route, Outcome: outcome, Limit: limit})
		if err != nil {
			return nil, err
		}
		return resp.Entries, nil
	}

	cfg := ctx.configValue()
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if !cfg.Journal.Enabled {
		return nil, errors.New("daemon is not running and the delivery journal is disabled")
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	entries, err := store.History(cmd.Context(), journal.Query{Route: route, Outcome: outcome, Limit: limit})
	if err != nil {
		return nil, err
	}
	records := make([]ipc.DeliveryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, ipc.DeliveryRecord{
			ID:         entry.ID,
			At:         entry.OccurredAt,
			Route:      entry.Route,
			BatchID:    entry.BatchID,
			File:       entry.File,
			Endpoint:   entry.Endpoint,
			Outcome:    entry.Outcome,
			Detail:     entry.Detail,
			DurationMS: entry.Duration.Milliseconds(),
		})
	}
	return records, nil
}

func buildHistoryRows(entries []ipc.DeliveryRecord) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		duration := time.Duration(entry.DurationMS) * time.Millisecond
		outcome := entry.Outcome
		if entry.Detail != "" {
			outcome = fmt.Sprintf("%s (%s)", entry.Outcome, entry.Detail)
		}
		rows = append(rows, []string{
			entry.At.Local().Format("2006-01-02 15:04:05"),
			entry.Route,
			entry.File,
			entry.Endpoint,
			outcome,
			duration.String(),
		})
	}
	return rows
}
