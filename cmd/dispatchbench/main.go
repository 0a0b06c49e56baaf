// Command dispatchbench drives a dispatch engine with synthetic load and
// reports per-queue statistics.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dispatchbench",
		Usage: "exercise a dispatch engine under synthetic load",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (yaml, json or toml)",
				EnvVars: []string{"DISPATCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			rootsCommand(),
		},
	}
}
