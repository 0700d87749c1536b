package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/storyline/internal/storyline"
)

// Devices is the shared index of registered devices, their access keys
// (bcrypt-hashed) and their last known session.
type Devices struct {
	db   *sql.DB
	cost int

	// verified caches a digest of keys that already passed bcrypt.
	verified sync.Map
}

func NewDevices(db *sql.DB) *Devices {
	return &Devices{db: db, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (d *Devices) WithCost(cost int) *Devices {
	d.cost = cost
	return d
}

// Register creates a device and returns its id and plaintext key. The key
// is not stored and cannot be recovered.
func (d *Devices) Register(ctx context.Context) (id, key string, err error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating device key: %w", err)
	}
	key = hex.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), d.cost)
	if err != nil {
		return "", "", fmt.Errorf("hashing device key: %w", err)
	}

	id = uuid.NewString()
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO devices (id, key_hash) VALUES (?, ?)`, id, string(hash),
	)
	if err != nil {
		return "", "", fmt.Errorf("inserting device: %w", err)
	}
	return id, key, nil
}

// Authenticate checks key against the stored hash of device.
func (d *Devices) Authenticate(ctx context.Context, device, key string) error {
	digest := sha256.Sum256([]byte(device + ":" + key))
	if v, ok := d.verified.Load(device); ok && v.([32]byte) == digest {
		return nil
	}

	var hash string
	err := d.db.QueryRowContext(ctx,
		`SELECT key_hash FROM devices WHERE id = ?`, device,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return storyline.Newf(storyline.CodeNotFound, "device %q not found", device)
	}
	if err != nil {
		return fmt.Errorf("looking up device: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return storyline.New(storyline.CodeNotAuthenticated, "invalid device key")
	}

	d.verified.Store(device, digest)
	return nil
}

// SaveSession records that device is signed in as user.
func (d *Devices) SaveSession(ctx context.Context, device string, user uuid.UUID, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO device_sessions (device_id, user_id, signed_in) VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET user_id = excluded.user_id, signed_in = excluded.signed_in`,
		device, user.String(), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ClearSession forgets the session of device.
func (d *Devices) ClearSession(ctx context.Context, device string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM device_sessions WHERE device_id = ?`, device); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Sessions returns the signed-in user of every device that has one.
func (d *Devices) Sessions(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT device_id, user_id FROM device_sessions`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var device, user string
		if err := rows.Scan(&device, &user); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		id, err := uuid.Parse(user)
		if err != nil {
			return nil, storyline.Wrap(storyline.CodeMalformedData, "session user id", err)
		}
		out[device] = id
	}
	return out, rows.Err()
}

func (d *Devices) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
