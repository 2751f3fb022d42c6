// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manifest

import (
	"path/filepath"

	"github.com/bitmark-inc/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher - re-runs the artifact self-check whenever the file changes
//
// purely an operational aid: a failing artifact is logged, never acted
// on, since the node's own state comes from the committed chain and
// not from the file
type Watcher struct {
	log      *logger.L
	path     string
	notifier *fsnotify.Watcher
}

// NewWatcher - create a watcher for one artifact file
//
// the containing directory is watched so editors that replace the
// file instead of rewriting it are still seen
func NewWatcher(path string) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if nil != err {
		return nil, err
	}
	err = notifier.Add(filepath.Dir(path))
	if nil != err {
		notifier.Close()
		return nil, err
	}

	return &Watcher{
		log:      logger.New("manifest-watch"),
		path:     path,
		notifier: notifier,
	}, nil
}

// Run - the background process loop
func (w *Watcher) Run(args interface{}, shutdown <-chan struct{}) {
	log := w.log
	log.Info("starting…")

	w.check()

loop:
	for {
		select {
		case <-shutdown:
			break loop

		case event := <-w.notifier.Events:
			if event.Name != w.path {
				continue loop
			}
			if 0 == event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue loop
			}
			log.Infof("artifact changed: %s", event.Name)
			w.check()

		case err := <-w.notifier.Errors:
			log.Errorf("watch error: %s", err)
		}
	}

	w.notifier.Close()
	log.Info("shutting down…")
	log.Flush()
}

// internal: load and self-check the artifact, log only
func (w *Watcher) check() {
	m, err := Load(w.path)
	if nil != err {
		w.log.Errorf("load: %s: error: %s", w.path, err)
		return
	}
	if err := m.SelfCheck(); nil != err {
		w.log.Errorf("self-check failed: %s: error: %s", w.path, err)
		return
	}
	w.log.Infof("self-check ok: %s  version: %d  routes: %d",
		w.path, m.Header.VersionID, len(m.Routes))
}
