package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"wp-bulkpost/internal/core/pipeline"
	"wp-bulkpost/internal/core/publish"
)

func newTagsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Work with post tags",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "resolve <tag,tag,...>",
		Short:   "Print the ID of each tag, creating missing ones",
		Example: `  wppost tags resolve "brushes, Procreate,lettering"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateRemote(); err != nil {
				return err
			}
			defer setupLogging(cfg, root.verbose, cmd.ErrOrStderr())()

			names := publish.NormalizeTags(strings.Join(args, ","))
			if len(names) == 0 {
				return errors.New("no tag names given")
			}
			ids, err := publish.NewTagResolver(pipeline.NewClient(cfg)).Resolve(cmd.Context(), names)
			for _, n := range names {
				if id, ok := ids[n]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", n, id)
				}
			}
			return err
		},
	})
	return cmd
}
