package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbag/core/internal/application/services"
	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/ports"
)

// NewIndexCommand creates the index command
func NewIndexCommand(configFile *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the content root and print the subdomain index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			tree, err := newContentTree(cfg, appLogger, metrics.New())
			if err != nil {
				return err
			}
			if err := tree.index.Rebuild(cmd.Context()); err != nil {
				return err
			}

			snapshot := tree.index.Snapshot()
			if asJSON {
				return writeIndexJSON(cmd.OutOrStdout(), snapshot)
			}
			return writeIndexTable(cmd.OutOrStdout(), snapshot)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the index as JSON")
	return cmd
}

// NewStatsCommand creates the stats command
func NewStatsCommand(configFile *string) *cobra.Command {
	var (
		filter ports.VisitFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats [filename]",
		Short: "Print visit counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer appLogger.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			repo, err := newVisitRepository(ctx, cfg, appLogger)
			if err != nil {
				return err
			}
			defer repo.Close()

			var records []*entities.VisitRecord
			if len(args) == 1 {
				record, err := repo.Get(ctx, args[0])
				if err != nil {
					return err
				}
				records = append(records, record)
			} else {
				records, err = repo.List(ctx, filter)
				if err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return writeStatsTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&filter.Prefix, "prefix", "", "only show files whose path starts with prefix")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of records (0 for all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of records to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func writeIndexTable(out io.Writer, snapshot *services.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBDOMAIN\tPATH\tLANGUAGE")
	for _, e := range snapshot.Entries() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.RelativePath, e.Language)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, c := range snapshot.Collisions() {
		fmt.Fprintf(out, "collision: %q kept %s, discarded %s\n", c.Key, c.Kept, c.Discarded)
	}
	fmt.Fprintf(out, "%d entries, built in %s\n", snapshot.Len(), snapshot.Duration.Round(time.Millisecond))
	return nil
}

func writeIndexJSON(out io.Writer, snapshot *services.Snapshot) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"generation": snapshot.Generation,
		"built_at":   snapshot.BuiltAt,
		"entries":    snapshot.Entries(),
		"collisions": snapshot.Collisions(),
	})
}

func writeStatsTable(out io.Writer, records []*entities.VisitRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tVISITS\tHTML\tRAW\tLAST VISIT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", r.Filename, r.Visits, r.HTMLFile, r.RawFile, r.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
