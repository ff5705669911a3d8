package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"optiinfra/pkginstall/internal/metadata"
)

func newInstallCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "install <file>",
		Short: "Validate, begin, and execute an installation from a metadata file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			return runInstall(a, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the metadata and stop before any side effect")
	return cmd
}

func runInstall(a *app, path string, dryRun bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("install: read %s: %w", path, err)
	}

	doc, err := metadata.Parse(raw)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := metadata.CheckRequirements(doc.Requirements, a.cfg.DataDir); err != nil {
		return fmt.Errorf("install: host requirements: %w", err)
	}

	steps, err := doc.StepInputs()
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if dryRun {
		a.log.Infow("dry run: metadata and requirements valid", "package", doc.Package.Name, "steps", len(steps))
		return nil
	}

	ctx := context.Background()

	if err := runPreInstall(ctx, a, doc); err != nil {
		return fmt.Errorf("install: pre_install: %w", err)
	}

	canonical, err := doc.Canonical()
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	id, err := a.manager.Begin(ctx, doc.Package.Name, canonical)
	if err != nil {
		return fmt.Errorf("install: begin: %w", err)
	}

	if err := a.manager.Execute(ctx, id, steps); err != nil {
		a.log.Errorw("install failed, rolled back", "transaction_id", id, "error", err)
		return fmt.Errorf("install: %w", err)
	}

	if err := a.manager.Commit(ctx, id); err != nil {
		return fmt.Errorf("install: commit: %w", err)
	}

	runPostInstall(ctx, a, doc)

	a.log.Infow("install committed", "transaction_id", id, "package", doc.Package.Name)
	fmt.Printf("transaction %d committed\n", id)
	return nil
}
