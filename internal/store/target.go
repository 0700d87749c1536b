package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/storyline"
)

// Target names which store is authoritative for a request. It has exactly
// two variants, Guest and Signed; Resolve handles both and rejects anything
// else instead of falling back.
type Target interface {
	target()
	DeviceID() string
}

// Guest targets the local store of a device with no session.
type Guest struct {
	Device string
}

// Signed targets the remote store of the user signed in on a device.
type Signed struct {
	Device string
	User   uuid.UUID
}

func (Guest) target()  {}
func (Signed) target() {}

func (g Guest) DeviceID() string  { return g.Device }
func (s Signed) DeviceID() string { return s.Device }

func (g Guest) String() string  { return "guest:" + g.Device }
func (s Signed) String() string { return "account:" + s.User.String() }

// LocalOpener returns the local store of a device.
type LocalOpener interface {
	Local(ctx context.Context, device string) (*Local, error)
}

// Selector resolves targets to stores.
type Selector struct {
	locals LocalOpener
	remote *Remote
}

// NewSelector creates a selector. remote may be nil when no remote database
// is configured; signed-in targets then fail with RemoteUnavailable.
func NewSelector(locals LocalOpener, remote *Remote) *Selector {
	return &Selector{locals: locals, remote: remote}
}

// Resolve returns the single authoritative store for t.
func (s *Selector) Resolve(ctx context.Context, t Target) (Store, error) {
	switch t := t.(type) {
	case Guest:
		return s.locals.Local(ctx, t.Device)
	case Signed:
		if t.User == uuid.Nil {
			return nil, storyline.New(storyline.CodeNotAuthenticated, "signed target without user")
		}
		if s.remote == nil {
			return nil, storyline.New(storyline.CodeRemoteUnavailable, "remote store not configured")
		}
		return s.remote.For(t.User), nil
	default:
		return nil, fmt.Errorf("unknown store target %T", t)
	}
}

// Local returns the device store regardless of session; used by the
// migration reconciler, whose source is always local.
func (s *Selector) Local(ctx context.Context, device string) (*Local, error) {
	return s.locals.Local(ctx, device)
}

// Account returns the remote store of user.
func (s *Selector) Account(user uuid.UUID) (*Account, error) {
	if s.remote == nil {
		return nil, storyline.New(storyline.CodeRemoteUnavailable, "remote store not configured")
	}
	if user == uuid.Nil {
		return nil, storyline.New(storyline.CodeNotAuthenticated, "no authenticated user")
	}
	return s.remote.For(user), nil
}

// HasRemote reports whether a remote database is configured.
func (s *Selector) HasRemote() bool {
	return s.remote != nil
}
