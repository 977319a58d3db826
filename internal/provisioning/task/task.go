// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package task contains the tasks run during device provisioning and
// the contracts they share with the pipeline that drives them.
package task

import (
	"github.com/juju/collections/set"
	"github.com/juju/worker/v4"

	"github.com/mtk-watch/managedprovisioning/core/packages"
)

// Task is a single provisioning step. A task instance serves exactly
// one run: Run is called once, the terminal outcome is reported
// through the task's Callback, and the instance is inert afterwards.
type Task interface {
	worker.Worker

	// Run starts the task for the given user. It returns as soon as
	// any asynchronous work has been issued; completion is reported
	// through the Callback. Kill and Wait may only be used after Run.
	Run(user packages.UserID)
}

// Callback receives the terminal outcome of a task run. Exactly one
// of OnSuccess or OnError is invoked, exactly once per run; after
// that the caller may discard the task.
type Callback interface {
	OnSuccess(t Task)
	OnError(t Task, errorCode int)
}

// ErrorCodeDefault is the code passed to Callback.OnError for both
// resolution and removal failures. Callers are not given per-package
// detail.
const ErrorCodeDefault = 0

// AppSetResolver supplies the app name sets that drive system app
// cleanup for a user. A non-nil error means the set could not be
// determined, which is distinct from a legitimately empty set.
type AppSetResolver interface {
	// NonRequiredApps returns the system apps that are not required
	// for the current provisioning session.
	NonRequiredApps(user packages.UserID) (set.Strings, error)

	// NewSystemApps returns the system apps that have appeared since
	// the user was last provisioned.
	NewSystemApps(user packages.UserID) (set.Strings, error)
}

// InstalledOracle answers whether a package is currently installed as
// a system app for a user. An unknown package is reported with an
// error satisfying errors.IsNotFound.
type InstalledOracle interface {
	IsInstalledSystemApp(name string, user packages.UserID) (bool, error)
}

// DeleteObserver receives the result of one asynchronous package
// removal. It is invoked exactly once per issued removal, possibly
// from another goroutine and possibly before DeleteSystemAppAsUser
// returns.
type DeleteObserver func(name string, succeeded bool)

// SystemAppDeleter asynchronously removes system apps. Removal must
// specifically target system apps and be scoped to the given user,
// and the observer must eventually be invoked exactly once per call.
type SystemAppDeleter interface {
	DeleteSystemAppAsUser(name string, user packages.UserID, observer DeleteObserver)
}
