package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/atelier/internal/appconfig"
)

func newInitCmd() *cobra.Command {
	var path string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(path, overwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", written)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "target config path")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing config")
	return cmd
}
