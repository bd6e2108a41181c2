package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the folders a scan covers by default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
			folders, err := b.Folders(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Println(f)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(foldersCmd)
}
