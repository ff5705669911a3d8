package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"optiinfra/pkginstall/internal/metadata"
)

func newCreateTemplateCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "create-template <name> <version>",
		Short: "Write a starter metadata document for a new package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := metadata.Template(args[0], args[1])

			if out == "" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("create-template: write %s: %w", out, err)
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "write the template to this path instead of stdout")
	return cmd
}
