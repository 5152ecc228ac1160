package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// TicksOptions holds flags for the ticks command.
type TicksOptions struct {
	*RootOptions
	Database         string
	PlayID           string
	Begin            int64
	End              int64
	ExcludeIgnorable bool
}

// NewTicksCommand creates the ticks command.
func NewTicksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TicksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ticks",
		Short: "Print the stored tick list of a play",
		Long: `Print the ticks a play stored in [begin, end), as getTickList returns
them: only ticks carrying events are listed.

Examples:
  amflow ticks --db ./plays.db --play 42 --end 100
  amflow ticks --db ./plays.db --play 42 --begin 10 --end 20 --exclude-ignorable
  amflow ticks --db ./plays.db --play 42 --end 100 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicks(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.PlayID, "play", "", "play ID (required)")
	_ = cmd.MarkFlagRequired("play")
	cmd.Flags().Int64Var(&opts.Begin, "begin", 0, "first frame, inclusive")
	cmd.Flags().Int64Var(&opts.End, "end", 0, "last frame, exclusive (required)")
	_ = cmd.MarkFlagRequired("end")
	cmd.Flags().BoolVar(&opts.ExcludeIgnorable, "exclude-ignorable", false, "omit events flagged ignorable")

	return cmd
}

func runTicks(opts *TicksOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(cmd, opts.RootOptions)

	query := amflow.GetTickListOptions{Begin: opts.Begin, End: opts.End}
	if opts.ExcludeIgnorable {
		query.ExcludeEventFlags = &amflow.ExcludeEventFlags{Ignorable: true}
	}
	if err := query.Validate(); err != nil {
		return out.Fail(CodeInvalidInput, "invalid range", err)
	}

	st, err := openDatabase(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ticks, err := st.TickRange(ctx, opts.PlayID, query.Begin, query.End)
	if err != nil {
		return out.Fail(CodeDatabase, "failed to read ticks", err)
	}
	tl := playlog.NewTickList(query.Begin, query.End, ticks)
	if query.ExcludeIgnorable() {
		tl = tl.WithoutIgnorable()
	}
	out.VerboseLog("%d stored ticks in range, %d with events", len(ticks), len(tl.Ticks))

	if out.JSON() {
		return out.Success(tl)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Play %s, frames [%d, %d): %d ticks with events\n", opts.PlayID, tl.Begin, tl.End, len(tl.Ticks))
	for _, tick := range tl.Ticks {
		fmt.Fprintf(w, "  frame %d\n", tick.Frame)
		for _, e := range tick.Events {
			line, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	return nil
}
