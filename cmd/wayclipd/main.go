// Command wayclipd is the instant-replay capture daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wayclipd",
		Short: "wayclipd",
		Long:  "Instant-replay screen recording daemon for Wayland desktops.",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newCheckCmd())

	return root
}
