// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packages holds the core domain types for provisioning-time
// package cleanup: user identities and the pure computation of which
// installed system apps are eligible for removal.
package packages

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// UserID identifies the user or profile that scopes all package
// queries and removals.
type UserID int32

// InstalledFunc reports whether the named package is currently
// installed as a system app for the user the function was scoped to.
// Implementations signal an unknown package with an error satisfying
// errors.IsNotFound; any other error means installed state could not
// be determined.
type InstalledFunc func(name string) (bool, error)

// DeletionCandidates computes the set of packages eligible for
// removal: the intersection of the non-required and new system app
// sets, restricted to packages that are presently installed. A
// package the oracle does not know is simply not a candidate. The
// input sets are not modified and the result does not depend on
// iteration order.
func DeletionCandidates(nonRequired, newSystem set.Strings, installed InstalledFunc) (set.Strings, error) {
	candidates := nonRequired.Intersection(newSystem)
	for _, name := range candidates.Values() {
		ok, err := installed(name)
		if errors.IsNotFound(err) {
			ok = false
		} else if err != nil {
			return nil, errors.Annotatef(err, "querying installed state of %q", name)
		}
		if !ok {
			candidates.Remove(name)
		}
	}
	return candidates, nil
}
