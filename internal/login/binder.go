// Package login implements the token endpoint: the password and refresh
// token grants, and the device binding that ties a login to one client
// installation.
package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
)

// DeviceMetadata carries the device fields a client chose to send. Absent
// fields are left untouched on the stored device.
type DeviceMetadata struct {
	Name      accounts.Field[string]
	Type      accounts.Field[int]
	PushToken accounts.Field[*string]
}

// NewDeviceMetadata keeps name and type only when both are known, and the
// push token whenever one was sent.
func NewDeviceMetadata(name string, deviceType int, hasType bool, pushToken string) DeviceMetadata {
	var meta DeviceMetadata
	if name != "" && hasType {
		meta.Name = accounts.Set(name)
		meta.Type = accounts.Set(deviceType)
	}
	if pushToken != "" {
		meta.PushToken = accounts.Set(accounts.Ptr(pushToken))
		if hasType {
			meta.Type = accounts.Set(deviceType)
		}
	}
	return meta
}

// Patch converts the metadata into a store patch.
func (m DeviceMetadata) Patch() accounts.DevicePatch {
	return accounts.DevicePatch{Name: m.Name, Type: m.Type, PushToken: m.PushToken}
}

// Binder keeps each device identifier bound to at most one user.
type Binder struct {
	store accounts.Store
}

// NewBinder constructs a Binder.
func NewBinder(store accounts.Store) *Binder {
	return &Binder{store: store}
}

// Bind resolves identifier to a device owned by user. A device held by
// another user, or by nobody, is deleted and recreated for user. The boolean
// is false only when identifier is empty, in which case nothing is touched.
func (b *Binder) Bind(ctx context.Context, identifier string, user accounts.User, meta DeviceMetadata) (accounts.Device, bool, error) {
	if identifier == "" {
		return accounts.Device{}, false, nil
	}

	device, err := b.store.DeviceByID(ctx, identifier)
	switch {
	case err == nil && device.OwnedBy(user.ID):
		return device, true, nil
	case err == nil:
		if err := b.store.DeleteDevice(ctx, identifier); err != nil {
			return accounts.Device{}, false, fmt.Errorf("unbind device: %w", err)
		}
	case !errors.Is(err, accounts.ErrNotFound):
		return accounts.Device{}, false, fmt.Errorf("load device: %w", err)
	}

	patch := meta.Patch()
	patch.UserID = accounts.Set(&user.ID)
	device, err = b.store.UpsertDevice(ctx, identifier, patch)
	if err != nil {
		return accounts.Device{}, false, fmt.Errorf("bind device: %w", err)
	}
	return device, true, nil
}
