package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vyasoai/relay/buffer"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

type bufferRow struct {
	ID          string    `json:"id" yaml:"id"`
	Source      string    `json:"source" yaml:"source"`
	App         string    `json:"app" yaml:"app"`
	SizeBytes   uint64    `json:"size_bytes" yaml:"size_bytes"`
	Attempts    int       `json:"attempts" yaml:"attempts"`
	LastAttempt time.Time `json:"last_attempt" yaml:"last_attempt"`
	NextDue     time.Time `json:"next_due,omitzero" yaml:"next_due,omitempty"`
}

func newBufferCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "buffer",
		Short: "List buffered events ordered by next retry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := r.Buffered(cmd.Context())
			if err != nil {
				return err
			}
			return renderBuffer(cmd.OutOrStdout(), output, entries)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json, yaml")
	return cmd
}

func toRows(entries []*buffer.Entry) []bufferRow {
	rows := make([]bufferRow, 0, len(entries))
	for _, e := range entries {
		row := bufferRow{
			ID:          e.ID,
			Source:      e.Body.Source,
			App:         e.Body.App,
			SizeBytes:   e.Body.SizeBytes,
			Attempts:    e.Attempts,
			LastAttempt: time.UnixMilli(e.LastAttempt).UTC(),
		}
		if e.NextDue != 0 {
			row.NextDue = e.NextDueTime().UTC()
		}
		rows = append(rows, row)
	}
	return rows
}

func renderBuffer(w io.Writer, format string, entries []*buffer.Entry) error {
	rows := toRows(entries)

	switch format {
	case formatJSON:
		return writeJSON(w, rows)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		printf(tw, "ID\tSOURCE\tAPP\tATTEMPTS\tNEXT DUE\n")
		for _, row := range rows {
			due := "now"
			if !row.NextDue.IsZero() {
				due = row.NextDue.Format(time.RFC3339)
			}
			printf(tw, "%s\t%s\t%s\t%d\t%s\n", row.ID, row.Source, row.App, row.Attempts, due)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printf(w, "%d buffered\n", len(rows))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
