package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridflow/gridflow/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the batch run archive",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "runs.db", "SQLite database path")

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var limit, offset int
			limit, _ = cmd.Flags().GetInt("limit")
			offset, _ = cmd.Flags().GetInt("offset")

			store, err := openArchive(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Printf("%s  %-16s %-16s %-9s  %d/%d failed  %s\n",
					run.ID, run.Calculation, run.Method, run.Status,
					run.FailedCount, run.ScenarioCount,
					run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	list.Flags().Int("limit", 20, "maximum number of runs to list")
	list.Flags().Int("offset", 0, "number of runs to skip")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run with its scenario outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %s %s, %d scenarios, status %s\n",
				run.ID, run.Calculation, run.Method, run.ScenarioCount, run.Status)
			if run.Error != nil {
				fmt.Printf("error: %s\n", *run.Error)
			}

			recs, err := store.ListScenariosByRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if rec.Error != nil {
					fmt.Printf("  scenario %d: %s (%s)\n", rec.Scenario, rec.Status, *rec.Error)
				} else {
					fmt.Printf("  scenario %d: %s\n", rec.Scenario, rec.Status)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)
	return cmd
}

func openArchive(cmd *cobra.Command, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
