// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/urfave/cli"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/manifest"
	"github.com/facetroute/facetd/routerecord"
)

func runBuild(c *cli.Context) error {

	m := c.App.Metadata["config"].(*metadata)

	routesFile := c.String("routes")
	if "" == routesFile {
		return fmt.Errorf("missing routes file")
	}

	outputFile := c.String("output")
	if "" == outputFile {
		return fmt.Errorf("missing output file")
	}

	chainID := c.Uint64("chain-id")
	if 0 == chainID {
		return fmt.Errorf("chain-id must be non-zero")
	}

	versionID := c.Uint64("epoch")
	if 0 == versionID {
		return fmt.Errorf("epoch must be non-zero")
	}

	deployer, err := address.FromHexString(c.String("deployer"))
	if nil != err {
		return fmt.Errorf("deployer: %q error: %s", c.String("deployer"), err)
	}

	previousHash := digest.Zero
	if previous := c.String("previous"); "" != previous {
		previousHash, err = digest.FromHexString(previous)
		if nil != err {
			return fmt.Errorf("previous: %q error: %s", previous, err)
		}
	}

	timestamp := c.Uint64("timestamp")
	if 0 == timestamp {
		timestamp = uint64(time.Now().Unix())
	}

	data, err := ioutil.ReadFile(routesFile)
	if nil != err {
		return err
	}

	routes := []routerecord.Route{}
	if err := json.Unmarshal(data, &routes); nil != err {
		return fmt.Errorf("routes: %q error: %s", routesFile, err)
	}

	built, err := manifest.Build(routes, versionID, timestamp, deployer, chainID, previousHash)
	if nil != err {
		return err
	}

	if err := built.Save(outputFile); nil != err {
		return err
	}

	if m.verbose {
		printJson(m.w, built)
	} else {
		printJson(m.w, map[string]interface{}{
			"manifestHash": built.Header.VersionHash,
			"root":         built.Root,
			"routes":       len(built.Routes),
		})
	}
	return nil
}
