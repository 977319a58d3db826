// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package appsets derives the app name sets consumed by system app
// cleanup: which system apps are not required for a provisioning
// session, and which have appeared since the user was last
// provisioned.
package appsets

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v3"

	"github.com/mtk-watch/managedprovisioning/core/packages"
	"github.com/mtk-watch/managedprovisioning/internal/provisioning/params"
	"github.com/mtk-watch/managedprovisioning/internal/provisioning/snapshot"
)

var logger = loggo.GetLogger("managedprovisioning.appsets")

// SystemAppLister enumerates the system apps currently present for a
// user.
type SystemAppLister interface {
	SystemApps(user packages.UserID) (set.Strings, error)
}

// Policy names the system apps that must survive cleanup for each
// provisioning action.
type Policy struct {
	// RequiredApps maps a provisioning action to the app names that
	// must not be removed when provisioning with that action.
	RequiredApps map[string][]string `yaml:"required-apps"`
}

// ParsePolicy reads a Policy from its YAML representation.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Annotate(err, "parsing required apps policy")
	}
	return &p, nil
}

// Required returns the apps the policy requires for the given action.
// The result is a fresh set the caller may modify.
func (p *Policy) Required(action string) set.Strings {
	return set.NewStrings(p.RequiredApps[action]...)
}

// ResolverConfig holds the collaborators a Resolver needs.
type ResolverConfig struct {
	// Params carries the provisioning session configuration.
	Params *params.ProvisioningParams

	// Policy names the required apps per provisioning action.
	Policy *Policy

	// Lister enumerates present system apps.
	Lister SystemAppLister

	// Store persists per-user system app snapshots.
	Store *snapshot.Store
}

// Validate ensures that the configuration is correctly populated.
func (config ResolverConfig) Validate() error {
	if config.Params == nil {
		return errors.NotValidf("nil Params")
	}
	if config.Policy == nil {
		return errors.NotValidf("nil Policy")
	}
	if config.Lister == nil {
		return errors.NotValidf("nil Lister")
	}
	if config.Store == nil {
		return errors.NotValidf("nil Store")
	}
	return nil
}

// Resolver produces the app sets for one provisioning session. It
// implements the cleanup task's AppSetResolver contract.
type Resolver struct {
	config ResolverConfig
}

// NewResolver returns a Resolver based on the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Resolver{config: config}, nil
}

// NonRequiredApps returns the system apps that may be removed for
// user: everything currently present, minus the apps the policy
// requires for the session's action and the device admin package.
func (r *Resolver) NonRequiredApps(user packages.UserID) (set.Strings, error) {
	current, err := r.config.Lister.SystemApps(user)
	if err != nil {
		return nil, errors.Annotatef(err, "listing system apps for user %d", user)
	}
	required := r.config.Policy.Required(r.config.Params.ProvisioningAction)
	required.Add(r.config.Params.DeviceAdminPackageName)
	return current.Difference(required), nil
}

// NewSystemApps returns the system apps that have appeared since the
// last snapshot for user, refreshing the snapshot as it goes. The
// first run for a user takes the initial snapshot and reports no app
// as new.
func (r *Resolver) NewSystemApps(user packages.UserID) (set.Strings, error) {
	current, err := r.config.Lister.SystemApps(user)
	if err != nil {
		return nil, errors.Annotatef(err, "listing system apps for user %d", user)
	}
	if !r.config.Store.HasSnapshot(user) {
		logger.Debugf("taking initial system app snapshot for user %d", user)
		if err := r.config.Store.TakeSnapshot(user, current); err != nil {
			return nil, errors.Trace(err)
		}
		return set.NewStrings(), nil
	}
	previous, err := r.config.Store.Snapshot(user)
	if err != nil {
		return nil, errors.Trace(err)
	}
	newApps := current.Difference(previous)
	if err := r.config.Store.TakeSnapshot(user, current); err != nil {
		return nil, errors.Trace(err)
	}
	return newApps, nil
}
