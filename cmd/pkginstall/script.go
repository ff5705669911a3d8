package main

import (
	"context"
	"fmt"

	"optiinfra/pkginstall/internal/metadata"
	"optiinfra/pkginstall/internal/subprocess"
)

// runPreInstall executes pre_install steps outside the transactional
// envelope. Per the source's resolution of Open Question (b), a failure
// here aborts before begin() — nothing has been snapshotted yet, so there
// is nothing to roll back.
func runPreInstall(ctx context.Context, a *app, doc *metadata.Document) error {
	runner := subprocess.Runner{}
	for i, s := range doc.PreInstall {
		if _, err := runner.Run(ctx, s.Command, s.Args...); err != nil {
			return fmt.Errorf("pre_install[%d] (%s): %w", i, s.Command, err)
		}
	}
	return nil
}

// runPostInstall executes post_install steps after a successful commit.
// Failures are logged as warnings, never propagated: the transaction has
// already committed and post_install never reopens or rolls it back.
func runPostInstall(ctx context.Context, a *app, doc *metadata.Document) {
	runner := subprocess.Runner{}
	for i, s := range doc.PostInstall {
		if _, err := runner.Run(ctx, s.Command, s.Args...); err != nil {
			a.log.Warnw("post_install step failed", "index", i, "command", s.Command, "error", err)
		}
	}
}
