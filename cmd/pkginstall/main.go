// Command pkginstall drives transactional package installation on
// Debian-family hosts: parse metadata, run an atomic multi-step install
// against the live system, and roll back cleanly on any failure.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pkginstall",
		Short:         "Transactional package installer for Debian-family hosts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("data-dir", "", "directory holding the durable log and blob store (default: platform data dir)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newInstallCmd(),
		newRollbackCmd(),
		newListCmd(),
		newStatusCmd(),
		newCleanupCmd(),
		newValidateCmd(),
		newCreateTemplateCmd(),
		newServeCmd(),
	)
	return root
}
