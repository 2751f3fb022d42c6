// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

type metadata struct {
	verbose bool
	e       io.Writer
	w       io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

func main() {

	app := cli.NewApp()
	app.Name = "facet-cli"
	app.Usage = "offline manifest artifact tooling"
	app.Version = version
	app.HideVersion = true

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " verbose result",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "build",
			Usage:     "build a manifest artifact from a route list",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "routes, r",
					Value: "",
					Usage: "*route list JSON `FILE`",
				},
				cli.StringFlag{
					Name:  "output, o",
					Value: "",
					Usage: "*manifest artifact output `FILE`",
				},
				cli.Uint64Flag{
					Name:  "chain-id, c",
					Value: 0,
					Usage: "*chain identifier `N`",
				},
				cli.Uint64Flag{
					Name:  "epoch, e",
					Value: 0,
					Usage: "*manifest version identifier `N`",
				},
				cli.StringFlag{
					Name:  "deployer, d",
					Value: "",
					Usage: "*deployer address `HEX`",
				},
				cli.StringFlag{
					Name:  "previous, p",
					Value: "",
					Usage: " previous manifest hash `HEX` [zero]",
				},
				cli.Uint64Flag{
					Name:  "timestamp, t",
					Value: 0,
					Usage: " header timestamp `SECONDS` [now]",
				},
			},
			Action: runBuild,
		},
		{
			Name:      "verify",
			Usage:     "self-check a manifest artifact",
			ArgsUsage: "FILE\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "code-dir, C",
					Value: "",
					Usage: " compare code identities against content files in `DIR`",
				},
			},
			Action: runVerify,
		},
		{
			Name:      "predict",
			Usage:     "print the deterministic address for a content file",
			ArgsUsage: "FILE\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "deployer, d",
					Value: "",
					Usage: "*deployer address `HEX`",
				},
			},
			Action: runPredict,
		},
		{
			Name:  "version",
			Usage: "display version",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "%s\n", version)
				return nil
			},
		},
	}

	app.Before = func(c *cli.Context) error {
		app.Metadata = map[string]interface{}{
			"config": &metadata{
				verbose: c.GlobalBool("verbose"),
				e:       c.App.ErrWriter,
				w:       c.App.Writer,
			},
		}
		return nil
	}

	err := app.Run(os.Args)
	if nil != err {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}
