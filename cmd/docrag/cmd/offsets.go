package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/rowstore"
)

func newOffsetsCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "offsets <store>",
		Short: "Build or verify the offset cache of a JSONL row store",
		Long: `Load the byte-offset table of a row-store file, scanning the file and
rewriting <store>.offsets.json when the cache is missing or inconsistent.`,
		Example: `  docrag offsets .docrag/guide/rows.jsonl
  docrag offsets .docrag/guide/rows.jsonl --rebuild`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffsets(cmd, args[0], rebuild)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the cache and rescan")

	return cmd
}

func runOffsets(cmd *cobra.Command, storePath string, rebuild bool) error {
	if rebuild {
		if err := removeIfExists(rowstore.OffsetsPath(storePath)); err != nil {
			return derrors.IOError("failed to remove offset cache", err)
		}
	}

	offsets, scanned, err := rowstore.LoadOffsets(storePath)
	if err != nil {
		return derrors.New(derrors.ErrCodeFileNotFound, fmt.Sprintf("cannot read row store %s", storePath), err)
	}

	state := "reused"
	if scanned {
		state = "rebuilt"
	}
	out := output.New(cmd.OutOrStdout())
	out.Successf("%d records, cache %s", len(offsets), state)
	out.KeyValue([][2]string{
		{"store", storePath},
		{"cache", rowstore.OffsetsPath(storePath)},
	})
	return nil
}
