package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/store"
)

// PlaysOptions holds flags for the plays command.
type PlaysOptions struct {
	*RootOptions
	Database string
}

// PlaySummary is the JSON form of a play's stored state.
type PlaySummary struct {
	PlayID      string `json:"play_id"`
	Ticks       int    `json:"ticks"`
	Events      int    `json:"events"`
	FirstFrame  int64  `json:"first_frame"`
	LastFrame   int64  `json:"last_frame"`
	StartPoints int    `json:"start_points"`
	StorageKeys int    `json:"storage_keys"`
}

func summarize(state store.PlayState) PlaySummary {
	return PlaySummary{
		PlayID:      state.PlayID,
		Ticks:       state.TickCount,
		Events:      state.EventCount,
		FirstFrame:  state.FirstFrame,
		LastFrame:   state.LastFrame,
		StartPoints: state.StartPoints,
		StorageKeys: state.StorageKeys,
	}
}

// NewPlaysCommand creates the plays command.
func NewPlaysCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlaysOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plays [play-id]",
		Short: "List stored plays",
		Long: `List the plays stored in a database, or summarize one play.

Examples:
  amflow plays --db ./plays.db
  amflow plays --db ./plays.db 42 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlays(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPlays(opts *PlaysOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(cmd, opts.RootOptions)

	st, err := openDatabase(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var states []store.PlayState
	if len(args) == 1 {
		state, err := st.GetPlayState(ctx, args[0])
		if err != nil {
			return out.Fail(CodeDatabase, "failed to get play state", err)
		}
		states = []store.PlayState{state}
	} else {
		states, err = st.ListPlays(ctx)
		if err != nil {
			return out.Fail(CodeDatabase, "failed to list plays", err)
		}
	}

	summaries := make([]PlaySummary, 0, len(states))
	for _, state := range states {
		summaries = append(summaries, summarize(state))
	}

	if out.JSON() {
		return out.Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No plays found.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s: %d ticks (frames %d-%d), %d events, %d start points, %d storage keys\n",
			s.PlayID, s.Ticks, s.FirstFrame, s.LastFrame, s.Events, s.StartPoints, s.StorageKeys)
	}
	return nil
}
