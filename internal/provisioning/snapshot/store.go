// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package snapshot persists the set of system apps present for a user
// at provisioning time, so later runs can tell which system apps have
// arrived since.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/mtk-watch/managedprovisioning/core/packages"
)

// Store reads and writes per-user system app snapshots beneath a
// single directory, one YAML file per user.
type Store struct {
	dir   string
	clock clock.Clock
}

// NewStore returns a Store keeping its snapshots under dir, which is
// created on first write.
func NewStore(dir string, clock clock.Clock) *Store {
	return &Store{dir: dir, clock: clock}
}

type snapshotDoc struct {
	CapturedAt time.Time `yaml:"captured-at"`
	Apps       []string  `yaml:"apps"`
}

func (s *Store) path(user packages.UserID) string {
	return filepath.Join(s.dir, fmt.Sprintf("system-apps-%d.yaml", user))
}

// HasSnapshot reports whether a snapshot has been taken for user.
func (s *Store) HasSnapshot(user packages.UserID) bool {
	_, err := os.Stat(s.path(user))
	return err == nil
}

// Snapshot returns the system apps recorded for user, or an error
// satisfying errors.IsNotFound when no snapshot has been taken.
func (s *Store) Snapshot(user packages.UserID) (set.Strings, error) {
	data, err := os.ReadFile(s.path(user))
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("system app snapshot for user %d", user)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotatef(err, "reading system app snapshot for user %d", user)
	}
	return set.NewStrings(doc.Apps...), nil
}

// TakeSnapshot records apps as the system apps present for user,
// replacing any previous snapshot.
func (s *Store) TakeSnapshot(user packages.UserID, apps set.Strings) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Trace(err)
	}
	doc := snapshotDoc{
		CapturedAt: s.clock.Now(),
		Apps:       apps.SortedValues(),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Trace(err)
	}
	// Write-then-rename so a crash mid-write cannot leave a torn
	// snapshot behind.
	tmp := s.path(user) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp, s.path(user)))
}
