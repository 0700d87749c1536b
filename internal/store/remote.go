package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playperu/storyline/internal/storyline"
)

const (
	slotFields = `id, user_id, slot_index, chapter_id, scene_index, relationship_score, choices, achievements, saved_at`

	selectSlotsQuery = `
        SELECT ` + slotFields + `
        FROM game_save_slots
        WHERE user_id = $1
        ORDER BY slot_index
    `
	upsertSlotQuery = `
        INSERT INTO game_save_slots (` + slotFields + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id, slot_index) DO UPDATE SET
            chapter_id = EXCLUDED.chapter_id,
            scene_index = EXCLUDED.scene_index,
            relationship_score = EXCLUDED.relationship_score,
            choices = EXCLUDED.choices,
            achievements = EXCLUDED.achievements,
            saved_at = EXCLUDED.saved_at
    `
	deleteSlotQuery     = `DELETE FROM game_save_slots WHERE user_id = $1 AND slot_index = $2`
	deleteAllSlotsQuery = `DELETE FROM game_save_slots WHERE user_id = $1`

	selectStatsQuery = `SELECT stats FROM user_stats WHERE user_id = $1`
	upsertStatsQuery = `
        INSERT INTO user_stats (user_id, stats, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (user_id) DO UPDATE SET stats = EXCLUDED.stats, updated_at = EXCLUDED.updated_at
    `
	deleteStatsQuery = `DELETE FROM user_stats WHERE user_id = $1`

	selectDocQuery = `SELECT data FROM user_documents WHERE user_id = $1 AND key = $2`
	upsertDocQuery = `
        INSERT INTO user_documents (user_id, key, data, updated_at) VALUES ($1, $2, $3, now())
        ON CONFLICT (user_id, key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
    `
	deleteDocQuery = `DELETE FROM user_documents WHERE user_id = $1 AND key = $2`
)

// SlotRow is one row of game_save_slots.
type SlotRow struct {
	ID                uuid.UUID         `db:"id"`
	UserID            uuid.UUID         `db:"user_id"`
	SlotIndex         int               `db:"slot_index"`
	ChapterID         int               `db:"chapter_id"`
	SceneIndex        int               `db:"scene_index"`
	RelationshipScore int               `db:"relationship_score"`
	Choices           map[string]string `db:"choices"`
	Achievements      []string          `db:"achievements"`
	SavedAt           time.Time         `db:"saved_at"`
}

// NewSlotRow converts a save slot to its remote row for user at index.
func NewSlotRow(user uuid.UUID, index int, s *storyline.SaveSlot) SlotRow {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		id = uuid.New()
	}
	choices := s.Choices
	if choices == nil {
		choices = map[string]string{}
	}
	achievements := s.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return SlotRow{
		ID:                id,
		UserID:            user,
		SlotIndex:         index,
		ChapterID:         s.ChapterID,
		SceneIndex:        s.SceneIndex,
		RelationshipScore: s.RelationshipScore,
		Choices:           choices,
		Achievements:      achievements,
		SavedAt:           time.UnixMilli(s.Timestamp).UTC(),
	}
}

func (r SlotRow) slot() *storyline.SaveSlot {
	return &storyline.SaveSlot{
		ID:                r.ID.String(),
		ChapterID:         r.ChapterID,
		SceneIndex:        r.SceneIndex,
		RelationshipScore: r.RelationshipScore,
		Choices:           r.Choices,
		Achievements:      r.Achievements,
		Timestamp:         r.SavedAt.UnixMilli(),
	}
}

func (r SlotRow) args() []any {
	choices, _ := json.Marshal(r.Choices)
	achievements, _ := json.Marshal(r.Achievements)
	return []any{
		r.ID, r.UserID, r.SlotIndex, r.ChapterID, r.SceneIndex, r.RelationshipScore,
		json.RawMessage(choices), json.RawMessage(achievements), r.SavedAt,
	}
}

// SlotUpserter writes a batch of save slot rows in one transaction.
type SlotUpserter interface {
	UpsertSlots(ctx context.Context, rows []SlotRow) error
}

// Remote is the shared Postgres store. Use For to scope it to one user.
type Remote struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewRemote(pool *pgxpool.Pool, timeout time.Duration) *Remote {
	return &Remote{pool: pool, timeout: timeout}
}

// For returns the store of one authenticated user.
func (r *Remote) For(user uuid.UUID) *Account {
	return &Account{remote: r, user: user}
}

func (r *Remote) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Remote) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Account is the remote store of one user. Rows of other users are never
// read or written.
type Account struct {
	remote *Remote
	user   uuid.UUID
}

var (
	_ Store        = (*Account)(nil)
	_ SlotUpserter = (*Account)(nil)
)

// User is the id the store is scoped to.
func (a *Account) User() uuid.UUID { return a.user }

func (a *Account) Read(ctx context.Context, key Key) ([]byte, bool, error) {
	ctx, cancel := a.remote.withTimeout(ctx)
	defer cancel()

	switch key {
	case KeyMigrationSentinel:
		return nil, false, sentinelErr()

	case KeySaves:
		var rows []SlotRow
		if err := pgxscan.Select(ctx, a.remote.pool, &rows, selectSlotsQuery, a.user); err != nil {
			return nil, false, remoteErr("reading save slots", err)
		}
		if len(rows) == 0 {
			return nil, false, nil
		}
		var slots storyline.SaveSlots
		for _, row := range rows {
			if !storyline.ValidSlot(row.SlotIndex) {
				return nil, false, storyline.Newf(storyline.CodeMalformedData, "remote slot index %d out of range", row.SlotIndex)
			}
			slots[row.SlotIndex] = row.slot()
		}
		data, err := json.Marshal(slots)
		if err != nil {
			return nil, false, fmt.Errorf("encoding save slots: %w", err)
		}
		return data, true, nil

	case KeyStats:
		return a.readJSON(ctx, selectStatsQuery, a.user)

	default:
		return a.readJSON(ctx, selectDocQuery, a.user, string(key))
	}
}

func (a *Account) readJSON(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	var data []byte
	err := pgxscan.Get(ctx, a.remote.pool, &data, query, args...)
	if pgxscan.NotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, remoteErr("reading document", err)
	}
	return data, true, nil
}

func (a *Account) Write(ctx context.Context, key Key, value []byte) error {
	if key == KeyMigrationSentinel {
		return sentinelErr()
	}
	return a.WriteAll(ctx, []Entry{{Key: key, Value: value}})
}

// WriteAll applies entries in one transaction. Save slots are written row by
// row: filled slots are upserted and emptied ones deleted.
func (a *Account) WriteAll(ctx context.Context, entries []Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		if err := a.queue(batch, e); err != nil {
			return err
		}
	}
	return a.exec(ctx, "writing", batch)
}

func (a *Account) queue(batch *pgx.Batch, e Entry) error {
	switch e.Key {
	case KeyMigrationSentinel:
		if e.Value != nil {
			return sentinelErr()
		}

	case KeySaves:
		if e.Value == nil {
			batch.Queue(deleteAllSlotsQuery, a.user)
			return nil
		}
		slots, err := DecodeSlots(e.Value)
		if err != nil {
			return err
		}
		for i, s := range slots {
			if s == nil {
				batch.Queue(deleteSlotQuery, a.user, i)
				continue
			}
			batch.Queue(upsertSlotQuery, NewSlotRow(a.user, i, s).args()...)
		}

	case KeyStats:
		if e.Value == nil {
			batch.Queue(deleteStatsQuery, a.user)
			return nil
		}
		batch.Queue(upsertStatsQuery, a.user, json.RawMessage(e.Value))

	default:
		if e.Value == nil {
			batch.Queue(deleteDocQuery, a.user, string(e.Key))
			return nil
		}
		batch.Queue(upsertDocQuery, a.user, string(e.Key), json.RawMessage(e.Value))
	}
	return nil
}

// exec runs batch in one transaction under the remote timeout.
func (a *Account) exec(ctx context.Context, op string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	ctx, cancel := a.remote.withTimeout(ctx)
	defer cancel()

	tx, err := a.remote.pool.Begin(ctx)
	if err != nil {
		return remoteErr("beginning "+op, err)
	}
	defer tx.Rollback(ctx)

	if err := execBatch(ctx, tx, batch); err != nil {
		return remoteErr(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return remoteErr("committing "+op, err)
	}
	return nil
}

// UpsertSlots writes rows keyed by (user_id, slot_index), overwriting any
// existing slot at the same index. Rows for other users are rejected.
func (a *Account) UpsertSlots(ctx context.Context, rows []SlotRow) error {
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.UserID != a.user {
			return storyline.New(storyline.CodeInvalidInput, "slot row belongs to another user")
		}
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertSlotQuery, row.args()...)
	}
	return a.exec(ctx, "upserting save slots", batch)
}

func (a *Account) RemoveAll(ctx context.Context, keys []Key) error {
	batch := &pgx.Batch{}
	for _, k := range keys {
		if err := a.queue(batch, Entry{Key: k}); err != nil {
			return err
		}
	}
	return a.exec(ctx, "removing keys", batch)
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return br.Close()
}

func remoteErr(op string, err error) error {
	return storyline.Wrap(storyline.CodeRemoteUnavailable, op, err)
}

func sentinelErr() error {
	return storyline.New(storyline.CodeInvalidInput, "migration sentinel is local only")
}
