package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/konyogony/wayclip/pkg/pipeline"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the GStreamer element set without starting capture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd)
		},
	}
}

func runCheck(cmd *cobra.Command) error {
	all := append(append([]string{}, pipeline.RequiredElements...), pipeline.AudioElements...)
	sort.Strings(all)
	missing := make(map[string]bool)
	for _, name := range pipeline.CheckElements(all...) {
		missing[name] = true
	}

	out := cmd.OutOrStdout()

	if term.IsTerminal(int(os.Stdout.Fd())) {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"element", "status"})
		for _, name := range all {
			status := "ok"
			if missing[name] {
				status = "MISSING"
			}
			table.Append([]string{name, status})
		}
		table.Render()
	} else {
		for _, name := range all {
			status := "ok"
			if missing[name] {
				status = "MISSING"
			}
			fmt.Fprintf(out, "%s\t%s\n", name, status)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%d required GStreamer elements are missing", len(missing))
	}
	return nil
}
