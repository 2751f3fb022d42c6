// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io/ioutil"

	"github.com/urfave/cli"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/chunk"
)

func runPredict(c *cli.Context) error {

	m := c.App.Metadata["config"].(*metadata)

	contentFile := c.Args().Get(0)
	if "" == contentFile {
		return fmt.Errorf("missing content file")
	}

	deployer, err := address.FromHexString(c.String("deployer"))
	if nil != err {
		return fmt.Errorf("deployer: %q error: %s", c.String("deployer"), err)
	}

	content, err := ioutil.ReadFile(contentFile)
	if nil != err {
		return err
	}

	deployed, contentHash, err := chunk.DeriveAddress(deployer, content)
	if nil != err {
		return err
	}

	printJson(m.w, map[string]interface{}{
		"address":     deployed,
		"display":     deployed.String(),
		"contentHash": contentHash,
		"size":        len(content),
	})
	return nil
}
