// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/manifest"
)

func runVerify(c *cli.Context) error {

	m := c.App.Metadata["config"].(*metadata)

	manifestFile := c.Args().Get(0)
	if "" == manifestFile {
		return fmt.Errorf("missing manifest file")
	}

	loaded, err := manifest.Load(manifestFile)
	if nil != err {
		return err
	}

	if err := loaded.SelfCheck(); nil != err {
		return fmt.Errorf("manifest: %q error: %s", manifestFile, err)
	}

	checkedCode := false
	if codeDir := c.String("code-dir"); "" != codeDir {
		fetch := func(moduleAddress address.Address) (digest.Digest, error) {
			name := filepath.Join(codeDir, hex.EncodeToString(moduleAddress[:]))
			content, err := ioutil.ReadFile(name)
			if nil != err {
				return digest.Zero, err
			}
			return digest.New(content), nil
		}
		if err := loaded.CheckLiveCode(fetch); nil != err {
			return fmt.Errorf("code identity: %s", err)
		}
		checkedCode = true
	}

	if m.verbose {
		printJson(m.w, loaded)
	} else {
		printJson(m.w, map[string]interface{}{
			"ok":           true,
			"manifestHash": loaded.Header.VersionHash,
			"epoch":        loaded.Header.VersionID,
			"routes":       len(loaded.Routes),
			"codeChecked":  checkedCode,
		})
	}
	return nil
}
