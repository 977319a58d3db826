// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package params defines the immutable configuration for one
// provisioning session, handed to every task the session runs.
package params

import (
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Recognized provisioning actions.
const (
	ActionProvisionManagedDevice  = "provision-managed-device"
	ActionProvisionManagedProfile = "provision-managed-profile"
	ActionProvisionManagedUser    = "provision-managed-user"
)

// ProvisioningParams carries the configuration for a provisioning
// session. Values are fixed at construction and do not change while
// the session's tasks run.
type ProvisioningParams struct {
	// ProvisioningAction names the kind of provisioning being
	// performed and must be one of the Action constants.
	ProvisioningAction string `yaml:"provisioning-action"`

	// DeviceAdminPackageName is the package that administers the
	// device or profile once provisioning completes. It is never a
	// removal candidate.
	DeviceAdminPackageName string `yaml:"device-admin-package-name"`

	// LeaveAllSystemAppsEnabled disables system app cleanup
	// entirely: when true no package is ever a deletion candidate.
	LeaveAllSystemAppsEnabled bool `yaml:"leave-all-system-apps-enabled,omitempty"`
}

// Validate returns an error if the params would not support a
// provisioning session.
func (p ProvisioningParams) Validate() error {
	switch p.ProvisioningAction {
	case ActionProvisionManagedDevice, ActionProvisionManagedProfile, ActionProvisionManagedUser:
	default:
		return errors.NotValidf("provisioning action %q", p.ProvisioningAction)
	}
	if p.DeviceAdminPackageName == "" {
		return errors.NotValidf("empty device admin package name")
	}
	return nil
}

// Parse reads provisioning params from their YAML representation and
// validates them.
func Parse(data []byte) (*ProvisioningParams, error) {
	var p ProvisioningParams
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Annotate(err, "parsing provisioning params")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &p, nil
}

// Marshal returns the YAML representation used to hand params across
// the provisioning pipeline.
func (p ProvisioningParams) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}
