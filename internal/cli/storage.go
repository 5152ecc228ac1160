package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/playlog"
)

// StorageOptions holds flags for the storage command.
type StorageOptions struct {
	*RootOptions
	Database  string
	PlayID    string
	Region    int
	RegionKey string
	GameID    string
	UserID    string
}

// NewStorageCommand creates the storage command.
func NewStorageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StorageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Read the storage data of a play",
		Long: `Read the values stored under one storage key, as getStorageData
returns them. Without --user every user's value is listed.

Regions: 1 slots, 2 scores, 3 counts, 4 values.

Examples:
  amflow storage --db ./plays.db --play 42 --region 2 --key high
  amflow storage --db ./plays.db --play 42 --region 2 --key high --user alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorage(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.PlayID, "play", "", "play ID (required)")
	_ = cmd.MarkFlagRequired("play")
	cmd.Flags().IntVar(&opts.Region, "region", int(playlog.StorageRegionValues), "storage region")
	cmd.Flags().StringVar(&opts.RegionKey, "key", "", "region key (required)")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&opts.GameID, "game", "", "game ID")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user ID (default every user)")

	return cmd
}

func runStorage(opts *StorageOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(cmd, opts.RootOptions)

	st, err := openDatabase(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	key := playlog.StorageReadKey{StorageKey: playlog.StorageKey{
		Region:    playlog.StorageRegion(opts.Region),
		RegionKey: opts.RegionKey,
		GameID:    opts.GameID,
		UserID:    opts.UserID,
	}}
	data, err := st.GetStorageData(ctx, opts.PlayID, []playlog.StorageReadKey{key})
	if err != nil {
		return out.Fail(CodeDatabase, "failed to read storage data", err)
	}
	values := data[0].Values

	if out.JSON() {
		return out.Success(data[0])
	}

	w := cmd.OutOrStdout()
	if len(values) == 0 {
		fmt.Fprintf(w, "No values under %s.\n", key.StorageKey)
		return nil
	}
	for _, v := range values {
		raw, err := json.Marshal(v.Data)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		if v.Tag != "" {
			fmt.Fprintf(w, "%s [%s]\n", raw, v.Tag)
		} else {
			fmt.Fprintf(w, "%s\n", raw)
		}
	}
	return nil
}
