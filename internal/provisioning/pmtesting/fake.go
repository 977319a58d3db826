// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pmtesting provides in-memory package manager fakes for
// exercising provisioning tasks.
package pmtesting

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/testing"

	"github.com/mtk-watch/managedprovisioning/core/packages"
	"github.com/mtk-watch/managedprovisioning/internal/provisioning/task"
)

var (
	_ task.InstalledOracle  = (*FakePackageManager)(nil)
	_ task.SystemAppDeleter = (*FakePackageManager)(nil)
	_ task.Callback         = (*CallbackRecorder)(nil)
)

// DeliveryMode controls how FakePackageManager delivers removal
// results to the observer.
type DeliveryMode int

const (
	// DeliverReentrant invokes the observer on the calling goroutine,
	// before DeleteSystemAppAsUser returns.
	DeliverReentrant DeliveryMode = iota

	// DeliverConcurrent invokes the observer from a fresh goroutine,
	// so results for separate packages race with each other.
	DeliverConcurrent

	// DeliverOnClock invokes the observer from a clock.AfterFunc
	// timer, after the configured delay.
	DeliverOnClock
)

// FakePackageManager implements task.InstalledOracle and
// task.SystemAppDeleter against an in-memory installed set. All
// collaborator calls are recorded on the embedded Stub.
type FakePackageManager struct {
	testing.Stub

	mu        sync.Mutex
	installed set.Strings
	failing   set.Strings
	deleted   set.Strings

	mode  DeliveryMode
	clock clock.Clock
	delay time.Duration
}

// NewFakePackageManager returns a fake with the given packages
// installed as system apps, delivering removal results reentrantly
// the way the platform does for local callers.
func NewFakePackageManager(installed ...string) *FakePackageManager {
	return &FakePackageManager{
		installed: set.NewStrings(installed...),
		failing:   set.NewStrings(),
		deleted:   set.NewStrings(),
	}
}

// SetInstalled replaces the installed system app set.
func (pm *FakePackageManager) SetInstalled(names ...string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.installed = set.NewStrings(names...)
}

// SetDeletionFails marks removal of the given packages as failing.
func (pm *FakePackageManager) SetDeletionFails(names ...string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failing = set.NewStrings(names...)
}

// DeliverConcurrently switches to goroutine delivery of removal
// results.
func (pm *FakePackageManager) DeliverConcurrently() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mode = DeliverConcurrent
}

// DeliverAfter delivers removal results from timers on the given
// clock, delay after each request.
func (pm *FakePackageManager) DeliverAfter(clk clock.Clock, delay time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mode = DeliverOnClock
	pm.clock = clk
	pm.delay = delay
}

// DeletedApps returns the packages removed so far.
func (pm *FakePackageManager) DeletedApps() set.Strings {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	deleted := set.NewStrings()
	for _, name := range pm.deleted.Values() {
		deleted.Add(name)
	}
	return deleted
}

// SystemApps returns the currently installed system apps, serving the
// appsets SystemAppLister contract.
func (pm *FakePackageManager) SystemApps(user packages.UserID) (set.Strings, error) {
	pm.AddCall("SystemApps", user)
	if err := pm.NextErr(); err != nil {
		return nil, err
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	apps := set.NewStrings()
	for _, name := range pm.installed.Values() {
		apps.Add(name)
	}
	return apps, nil
}

// IsInstalledSystemApp is part of the task.InstalledOracle interface.
func (pm *FakePackageManager) IsInstalledSystemApp(name string, user packages.UserID) (bool, error) {
	pm.AddCall("IsInstalledSystemApp", name, user)
	if err := pm.NextErr(); err != nil {
		return false, err
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pm.installed.Contains(name) {
		return false, errors.NotFoundf("package %q", name)
	}
	return true, nil
}

// DeleteSystemAppAsUser is part of the task.SystemAppDeleter
// interface.
func (pm *FakePackageManager) DeleteSystemAppAsUser(name string, user packages.UserID, observer task.DeleteObserver) {
	pm.AddCall("DeleteSystemAppAsUser", name, user)

	pm.mu.Lock()
	succeeded := !pm.failing.Contains(name)
	if succeeded {
		pm.deleted.Add(name)
		pm.installed.Remove(name)
	}
	mode, clk, delay := pm.mode, pm.clock, pm.delay
	pm.mu.Unlock()

	switch mode {
	case DeliverConcurrent:
		go observer(name, succeeded)
	case DeliverOnClock:
		clk.AfterFunc(delay, func() {
			observer(name, succeeded)
		})
	default:
		observer(name, succeeded)
	}
}

// CallbackRecorder is a task.Callback that records terminal outcomes
// and flags contract violations.
type CallbackRecorder struct {
	mu         sync.Mutex
	successes  int
	errorCodes []int
}

// OnSuccess is part of the task.Callback interface.
func (r *CallbackRecorder) OnSuccess(t task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

// OnError is part of the task.Callback interface.
func (r *CallbackRecorder) OnError(t task.Task, errorCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCodes = append(r.errorCodes, errorCode)
}

// Outcome reports the callbacks delivered so far.
func (r *CallbackRecorder) Outcome() (successes int, errorCodes []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes, append([]int(nil), r.errorCodes...)
}
