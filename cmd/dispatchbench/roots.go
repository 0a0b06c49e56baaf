package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/ravynsoft/go-dispatch/core"
)

func rootsCommand() *cli.Command {
	return &cli.Command{
		Name:  "roots",
		Usage: "print the root queue table",
		Action: func(c *cli.Context) error {
			eng := core.NewEngine(core.ThreadPoolFunc(func(core.DrainRequest) {}), nil)
			return printRoots(c.App.Writer, eng)
		},
	}
}

func printRoots(out io.Writer, eng *core.Engine) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tQOS\tOVERCOMMIT\tPRIORITY")
	for _, q := range eng.Roots().All() {
		p := q.BasePriority()
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", q.Label(), p.QoS(), p.Overcommit(), p)
	}
	return w.Flush()
}
