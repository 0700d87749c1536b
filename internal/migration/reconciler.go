// Package migration moves guest progress into an account the first time a
// device signs in. Local data is removed only after the remote write is
// confirmed.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
	"github.com/playperu/storyline/internal/telemetry"
)

// State is the reconciler state of one device.
type State string

const (
	Idle      State = "idle"
	Migrating State = "migrating"
	Failed    State = "failed"
)

// Account is the remote store of one user.
type Account interface {
	store.Store
	store.SlotUpserter
}

// Stores opens the two sides of a migration.
type Stores interface {
	Local(ctx context.Context, device string) (store.Store, error)
	Account(user uuid.UUID) (Account, error)
}

// FromSelector adapts a store selector.
func FromSelector(sel *store.Selector) Stores {
	return selectorStores{sel}
}

type selectorStores struct{ sel *store.Selector }

func (s selectorStores) Local(ctx context.Context, device string) (store.Store, error) {
	local, err := s.sel.Local(ctx, device)
	if err != nil {
		return nil, err
	}
	return local, nil
}

func (s selectorStores) Account(user uuid.UUID) (Account, error) {
	acct, err := s.sel.Account(user)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Status is the reconciler view of one device.
type Status struct {
	State     State     `json:"state"`
	Pending   bool      `json:"pending"`
	Migrated  int       `json:"migratedSlots,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	// held marks a Migrating state reserved by a sign-in whose migration
	// has not started yet.
	held bool
}

// Result describes one reconciler run.
type Result struct {
	Skipped       bool `json:"skipped"`
	Slots         int  `json:"slots"`
	StatsMigrated bool `json:"statsMigrated"`
}

// Reconciler runs migrations, at most one per device at a time.
type Reconciler struct {
	stores  Stores
	events  events.Publisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	status map[string]Status
}

func New(stores Stores, pub events.Publisher, metrics *telemetry.Metrics, logger *slog.Logger) *Reconciler {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Reconciler{
		stores:  stores,
		events:  pub,
		metrics: metrics,
		logger:  logger.With("component", "migration"),
		now:     time.Now,
		status:  make(map[string]Status),
	}
}

// Status returns the state of device. Pending reflects the local sentinel.
func (r *Reconciler) Status(ctx context.Context, device string) (Status, error) {
	r.mu.Lock()
	st, ok := r.status[device]
	r.mu.Unlock()
	if !ok {
		st.State = Idle
	}

	local, err := r.stores.Local(ctx, device)
	if err != nil {
		return Status{}, err
	}
	_, pending, err := local.Read(ctx, store.KeyMigrationSentinel)
	if err != nil {
		return Status{}, err
	}
	st.Pending = pending
	return st, nil
}

// Gate fails with MigrationInProgress while device is migrating.
func (r *Reconciler) Gate(device string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status[device].State == Migrating {
		return storyline.Newf(storyline.CodeMigrationInProgress, "device %s is migrating", device)
	}
	return nil
}

// MarkPending copies the guest save slots of device into the migration
// sentinel so the next sign-in moves them. It reports false when there is
// nothing to migrate.
func (r *Reconciler) MarkPending(ctx context.Context, device string) (bool, error) {
	local, err := r.stores.Local(ctx, device)
	if err != nil {
		return false, err
	}
	data, ok, err := local.Read(ctx, store.KeySaves)
	if err != nil || !ok {
		return false, err
	}
	slots, err := store.DecodeSlots(data)
	if err != nil {
		return false, err
	}
	if slots.Empty() {
		return false, nil
	}
	if err := local.Write(ctx, store.KeyMigrationSentinel, data); err != nil {
		return false, err
	}
	r.logger.Info("migration pending", "device", device)
	return true, nil
}

// Attach wires r to the sessions of t. A device signing in from guest is
// Migrating before t reports the new session, so no request can reach the
// account ahead of the migration.
func (r *Reconciler) Attach(t *session.Tracker) {
	t.OnSwitch(r.hold)
	t.Subscribe(r.OnTransition)
}

func (r *Reconciler) hold(t session.Transition) {
	if !t.SignedIn() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status[t.Device].State == Migrating {
		return
	}
	r.status[t.Device] = Status{State: Migrating, UpdatedAt: r.now().UTC(), held: true}
}

// OnTransition is a session subscriber: a guest signing in triggers a
// migration. Failures are recorded in the device status.
func (r *Reconciler) OnTransition(ctx context.Context, t session.Transition) {
	if !t.SignedIn() {
		return
	}
	if _, err := r.Migrate(ctx, t.Device, t.To.User); err != nil {
		r.logger.Warn("migration failed", "device", t.Device, "user", t.To.User, "error", err)
	}
}

// Migrate moves the sentinel slots of device into the account of user. With
// no sentinel present it does nothing. On failure local data is untouched
// and the device is left Failed; calling Migrate again retries.
func (r *Reconciler) Migrate(ctx context.Context, device string, user uuid.UUID) (Result, error) {
	if err := r.begin(device); err != nil {
		return Result{}, err
	}

	res, err := r.migrate(ctx, device, user)
	switch {
	case err != nil:
		r.finish(device, Status{State: Failed, Error: err.Error()})
		r.metrics.Migration("failed")
		r.events.Publish(ctx, events.New(events.TypeMigrationFailed, device, map[string]string{"error": err.Error()}))
	case res.Skipped:
		r.finish(device, Status{State: Idle})
		r.metrics.Migration("skipped")
	default:
		r.finish(device, Status{State: Idle, Migrated: res.Slots})
		r.metrics.Migration("completed")
		r.events.Publish(ctx, events.New(events.TypeMigrationCompleted, device, res))
		r.logger.Info("migration completed", "device", device, "user", user, "slots", res.Slots, "stats", res.StatsMigrated)
	}
	return res, err
}

func (r *Reconciler) migrate(ctx context.Context, device string, user uuid.UUID) (Result, error) {
	local, err := r.stores.Local(ctx, device)
	if err != nil {
		return Result{}, err
	}
	data, ok, err := local.Read(ctx, store.KeyMigrationSentinel)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Skipped: true}, nil
	}
	slots, err := store.DecodeSlots(data)
	if err != nil {
		return Result{}, err
	}

	acct, err := r.stores.Account(user)
	if err != nil {
		return Result{}, err
	}
	r.events.Publish(ctx, events.New(events.TypeMigrationStarted, device, nil))

	var rows []store.SlotRow
	for i, s := range slots {
		if s != nil {
			rows = append(rows, store.NewSlotRow(user, i, s))
		}
	}
	if err := acct.UpsertSlots(ctx, rows); err != nil {
		return Result{}, fmt.Errorf("upserting slots: %w", err)
	}

	statsMigrated, err := migrateStats(ctx, local, acct)
	if err != nil {
		return Result{}, err
	}

	if err := local.RemoveAll(ctx, []store.Key{store.KeyMigrationSentinel, store.KeySaves}); err != nil {
		return Result{}, fmt.Errorf("clearing local saves: %w", err)
	}
	return Result{Slots: len(rows), StatsMigrated: statsMigrated}, nil
}

// migrateStats copies local stats to an account that has none.
func migrateStats(ctx context.Context, local store.Store, acct Account) (bool, error) {
	stats, ok, err := local.Read(ctx, store.KeyStats)
	if err != nil || !ok {
		return false, err
	}
	_, exists, err := acct.Read(ctx, store.KeyStats)
	if err != nil {
		return false, fmt.Errorf("reading account stats: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := acct.Write(ctx, store.KeyStats, stats); err != nil {
		return false, fmt.Errorf("writing account stats: %w", err)
	}
	return true, nil
}

func (r *Reconciler) begin(device string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.status[device]; st.State == Migrating && !st.held {
		return storyline.Newf(storyline.CodeMigrationInProgress, "device %s is migrating", device)
	}
	r.status[device] = Status{State: Migrating, UpdatedAt: r.now().UTC()}
	return nil
}

func (r *Reconciler) finish(device string, st Status) {
	st.UpdatedAt = r.now().UTC()
	r.mu.Lock()
	r.status[device] = st
	r.mu.Unlock()
}
