package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"optiinfra/pkginstall/internal/metadata"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a metadata file and validate every step's shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("validate: read %s: %w", args[0], err)
			}

			doc, err := metadata.Parse(raw)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			steps, err := doc.StepInputs()
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			reg := newHandlerRegistry(a.cfg)
			for i, step := range steps {
				handler, err := reg.Get(step.Type)
				if err != nil {
					return fmt.Errorf("validate: install_steps[%d]: %w", i, err)
				}
				if err := handler.Validate(step.Data); err != nil {
					return fmt.Errorf("validate: install_steps[%d] (%s): %w", i, step.Type, err)
				}
			}

			if err := metadata.CheckRequirements(doc.Requirements, a.cfg.DataDir); err != nil {
				return fmt.Errorf("validate: host requirements: %w", err)
			}

			fmt.Printf("%s: %d install step(s) valid\n", args[0], len(steps))
			return nil
		},
	}
}
