package cli

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/ui/tui"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logOut := cmd.ErrOrStderr()
			if watch {
				// The dashboard owns the terminal.
				logOut = io.Discard
			}
			a, ctx, err := openApp(cmd, opts, logOut)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if watch {
				model := tui.NewModel("mnemo", a.mem.Stats, interval)
				program := tea.NewProgram(model, tea.WithAltScreen())
				a.obs.Events().SubscribeAll(tui.NewDashboard(program).Event)
				_, err := program.Run()
				return err
			}

			st := a.mem.Stats()
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			printStats(out, st)
			onDisk, err := a.db.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "on disk:    %d items\n", onDisk)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Open the live dashboard")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Dashboard refresh interval")
	return cmd
}

func printStats(out io.Writer, st memory.Stats) {
	fmt.Fprintf(out, "items:      %d live, %d expired, %d total\n", st.LiveItems, st.ExpiredItems, st.TotalItems)
	fmt.Fprintf(out, "capacity:   %d (%s)\n", st.MaxItems, st.Strategy)
	fmt.Fprintf(out, "dimension:  %d\n", st.Dimension)
	fmt.Fprintf(out, "age:        <1h %d, <24h %d, <7d %d, older %d\n", st.Age.LastHour, st.Age.LastDay, st.Age.LastWeek, st.Age.Older)
	fmt.Fprintf(out, "avg length: %.1f chars\n", st.AvgContentLength)
	fmt.Fprintf(out, "footprint:  %s\n", humanize.Bytes(uint64(st.ApproxBytes)))
	persisted := "never"
	if !st.LastPersisted.IsZero() {
		persisted = humanize.Time(st.LastPersisted)
	}
	fmt.Fprintf(out, "persisted:  %s", persisted)
	if st.Dirty {
		fmt.Fprint(out, " (unsaved changes)")
	}
	fmt.Fprintln(out)
}
