// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package task

import (
	"sync"
	"sync/atomic"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/mtk-watch/managedprovisioning/core/packages"
	"github.com/mtk-watch/managedprovisioning/internal/provisioning/params"
)

var logger = loggo.GetLogger("managedprovisioning.task")

var _ Task = (*DeleteNonRequiredAppsTask)(nil)

// Config holds the collaborators a DeleteNonRequiredAppsTask needs.
type Config struct {
	// Params carries the provisioning session configuration.
	Params *params.ProvisioningParams

	// Resolver supplies the non-required and new system app sets.
	Resolver AppSetResolver

	// Oracle reports current installed state.
	Oracle InstalledOracle

	// Deleter performs the asynchronous removals.
	Deleter SystemAppDeleter

	// Callback receives the terminal outcome of the run.
	Callback Callback
}

// Validate ensures that the configuration is correctly populated for
// task operation.
func (config Config) Validate() error {
	if config.Params == nil {
		return errors.NotValidf("nil Params")
	}
	if config.Resolver == nil {
		return errors.NotValidf("nil Resolver")
	}
	if config.Oracle == nil {
		return errors.NotValidf("nil Oracle")
	}
	if config.Deleter == nil {
		return errors.NotValidf("nil Deleter")
	}
	if config.Callback == nil {
		return errors.NotValidf("nil Callback")
	}
	return nil
}

type deleteResult struct {
	name      string
	succeeded bool
}

// DeleteNonRequiredAppsTask removes system apps that are no longer
// required once a device or profile has been configured for managed
// use. One removal request is issued per eligible package; the
// results arrive asynchronously, in any order and from any goroutine,
// and are joined by a single loop that emits the terminal callback
// once every removal has completed.
type DeleteNonRequiredAppsTask struct {
	tomb tomb.Tomb

	config Config

	started  atomic.Bool
	finished sync.Once

	// completions carries one result per issued removal from the
	// delete observers to the join loop. It is buffered to the
	// fan-out size so observers never block, even when a removal
	// completes reentrantly before the loop starts.
	completions chan deleteResult
	outstanding int
}

// NewDeleteNonRequiredAppsTask returns a task ready to run once.
func NewDeleteNonRequiredAppsTask(config Config) (*DeleteNonRequiredAppsTask, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &DeleteNonRequiredAppsTask{config: config}, nil
}

// Run computes the set of removable system apps for user and
// requests removal of each. It returns as soon as every removal
// request has been issued; the outcome is reported later through the
// Callback. Run must be called exactly once.
func (t *DeleteNonRequiredAppsTask) Run(user packages.UserID) {
	if !t.started.CompareAndSwap(false, true) {
		logger.Errorf("ignoring repeated run for user %d", user)
		return
	}

	if t.config.Params.LeaveAllSystemAppsEnabled {
		logger.Debugf("leaving all system apps enabled for user %d", user)
		t.terminate(true)
		return
	}

	candidates, err := t.candidates(user)
	if err != nil {
		logger.Errorf("cannot compute removable system apps for user %d: %v", user, err)
		t.terminate(false)
		return
	}
	if candidates.IsEmpty() {
		logger.Debugf("no system apps to remove for user %d", user)
		t.terminate(true)
		return
	}

	logger.Infof("removing system apps %v for user %d", candidates.SortedValues(), user)
	t.outstanding = candidates.Size()
	t.completions = make(chan deleteResult, t.outstanding)
	t.tomb.Go(t.loop)
	for _, name := range candidates.SortedValues() {
		t.config.Deleter.DeleteSystemAppAsUser(name, user, t.observe)
	}
}

// Kill is part of the worker.Worker interface. Killing the task
// abandons any outstanding removals without emitting the callback.
func (t *DeleteNonRequiredAppsTask) Kill() {
	t.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface. It returns once the
// terminal callback has been emitted or the task has been killed.
func (t *DeleteNonRequiredAppsTask) Wait() error {
	return t.tomb.Wait()
}

// candidates resolves the app sets for user and intersects them with
// what is actually installed. A resolver or oracle failure means the
// removal set cannot be determined, and no removal is attempted.
func (t *DeleteNonRequiredAppsTask) candidates(user packages.UserID) (set.Strings, error) {
	nonRequired, err := t.config.Resolver.NonRequiredApps(user)
	if err != nil {
		return nil, errors.Annotate(err, "resolving non-required apps")
	}
	newSystem, err := t.config.Resolver.NewSystemApps(user)
	if err != nil {
		return nil, errors.Annotate(err, "resolving new system apps")
	}
	return packages.DeletionCandidates(nonRequired, newSystem, func(name string) (bool, error) {
		return t.config.Oracle.IsInstalledSystemApp(name, user)
	})
}

// loop joins the removal completions. It is the only consumer of the
// completions channel, so counter updates are serialized without
// further locking; first failure wins and the terminal callback is
// deferred until every issued removal has completed.
func (t *DeleteNonRequiredAppsTask) loop() error {
	outstanding := t.outstanding
	failed := false
	for outstanding > 0 {
		select {
		case <-t.tomb.Dying():
			return tomb.ErrDying
		case result := <-t.completions:
			if result.succeeded {
				logger.Debugf("removed system app %q", result.name)
			} else {
				logger.Errorf("failed to remove system app %q", result.name)
				failed = true
			}
			outstanding--
		}
	}
	t.finish(!failed)
	return nil
}

// observe is the completion sink handed to the Deleter for every
// issued removal. The channel buffer accommodates one result per
// issued removal; anything beyond that is an out-of-contract
// duplicate and is dropped.
func (t *DeleteNonRequiredAppsTask) observe(name string, succeeded bool) {
	select {
	case t.completions <- deleteResult{name: name, succeeded: succeeded}:
	default:
		logger.Warningf("discarding unexpected removal result for %q", name)
	}
}

// terminate finishes a run that issued no removals.
func (t *DeleteNonRequiredAppsTask) terminate(succeeded bool) {
	t.tomb.Go(func() error {
		t.finish(succeeded)
		return nil
	})
}

// finish emits the terminal callback. The sync.Once guard keeps the
// exactly-once contract even if a stray completion is delivered after
// the join loop has finalised.
func (t *DeleteNonRequiredAppsTask) finish(succeeded bool) {
	t.finished.Do(func() {
		if succeeded {
			t.config.Callback.OnSuccess(t)
		} else {
			t.config.Callback.OnError(t, ErrorCodeDefault)
		}
	})
}
