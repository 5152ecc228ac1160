package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/amflow"
)

// StartPointOptions holds flags for the startpoint command.
type StartPointOptions struct {
	*RootOptions
	Database  string
	PlayID    string
	Frame     int64
	Timestamp int64
	All       bool
}

// NewStartPointCommand creates the startpoint command.
func NewStartPointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartPointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "startpoint",
		Short: "Look up the start points of a play",
		Long: `Look up a start point the way getStartPoint selects it.

Without a bound the frame 0 start point is returned. --frame and
--timestamp select the latest start point strictly before the bound.
--all lists every stored start point.

Examples:
  amflow startpoint --db ./plays.db --play 42
  amflow startpoint --db ./plays.db --play 42 --frame 300
  amflow startpoint --db ./plays.db --play 42 --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStartPoint(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.PlayID, "play", "", "play ID (required)")
	_ = cmd.MarkFlagRequired("play")
	cmd.Flags().Int64Var(&opts.Frame, "frame", 0, "select the latest start point before this frame")
	cmd.Flags().Int64Var(&opts.Timestamp, "timestamp", 0, "select the latest start point before this timestamp")
	cmd.Flags().BoolVar(&opts.All, "all", false, "list every start point")
	cmd.MarkFlagsMutuallyExclusive("frame", "timestamp", "all")

	return cmd
}

func runStartPoint(opts *StartPointOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(cmd, opts.RootOptions)

	st, err := openDatabase(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.All {
		points, err := st.StartPoints(ctx, opts.PlayID)
		if err != nil {
			return out.Fail(CodeDatabase, "failed to read start points", err)
		}
		if out.JSON() {
			return out.Success(points)
		}
		w := cmd.OutOrStdout()
		if len(points) == 0 {
			fmt.Fprintf(w, "No start points for play %s.\n", opts.PlayID)
			return nil
		}
		for _, sp := range points {
			printStartPoint(cmd, sp)
		}
		return nil
	}

	var query amflow.GetStartPointOptions
	switch {
	case cmd.Flags().Changed("frame"):
		query = amflow.BeforeFrame(opts.Frame)
	case cmd.Flags().Changed("timestamp"):
		query = amflow.BeforeTimestamp(opts.Timestamp)
	}

	sp, err := st.FindStartPoint(ctx, opts.PlayID, query)
	if err != nil {
		return out.Fail(CodeDatabase, fmt.Sprintf("no start point for %s", query), err)
	}
	if out.JSON() {
		return out.Success(sp)
	}
	printStartPoint(cmd, sp)
	return nil
}

func printStartPoint(cmd *cobra.Command, sp amflow.StartPoint) {
	data := "null"
	if len(sp.Data) > 0 {
		data = string(sp.Data)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "frame %d, timestamp %d: %s\n", sp.Frame, sp.Timestamp, data)
}
