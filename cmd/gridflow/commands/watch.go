package commands

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gridflow/gridflow/pkg/caseio"
	"github.com/gridflow/gridflow/pkg/network"
	"github.com/gridflow/gridflow/pkg/solver"
)

func newWatchCommand() *cobra.Command {
	var (
		method  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "watch <case-file>",
		Short: "Re-solve a case whenever its file changes",
		Long: `Watch a case file and run a power flow on every change. Useful while
editing a case by hand: compile or solve failures are logged and watching
continues.`,
		Example: `  # Watch a case and print results on each save
  gridflow watch case.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(args[0]); err != nil {
				return err
			}

			solveOnce := func() {
				dataset, err := caseio.ReadCaseFile(args[0])
				if err != nil {
					log.Error().Err(err).Msg("Read failed")
					return
				}
				net, err := network.Compile(dataset)
				if err != nil {
					log.Error().Err(err).Msg("Compile failed")
					return
				}
				rs, err := solver.Solve(net, solver.Options{
					Symmetric: true,
					Method:    solver.Method(method),
				})
				if err != nil {
					log.Error().Err(err).Msg("Solve failed")
					return
				}
				warnOverloads(rs)
				if err := writeResults(outFile, rs); err != nil {
					log.Error().Err(err).Msg("Write failed")
				}
			}

			log.Info().Str("case", args[0]).Msg("Watching")
			solveOnce()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
						log.Info().Str("case", event.Name).Msg("Case changed, re-solving")
						solveOnce()
						// Editors replace files on save; re-add the path in
						// case the watched inode went away.
						_ = watcher.Add(args[0])
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watch error")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "newton_raphson", "calculation method")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file path (default stdout)")

	return cmd
}
