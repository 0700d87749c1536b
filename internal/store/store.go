// Package store is the persistence adapter: a key-value contract over the
// per-device local database and the per-user remote database, a two-variant
// target selector between them, and typed, validated records on top.
package store

import (
	"context"
	"slices"
)

// Key names one persisted document.
type Key string

const (
	KeyChapterProgress Key = "chapterProgress"
	KeySaves           Key = "gameSaves"
	KeyStats           Key = "gameStats"
	KeyAchievements    Key = "achievements"
	KeySettings        Key = "gameSettings"
	KeyPlayState       Key = "gameProgress"

	// KeyMigrationSentinel holds guest saves awaiting migration. Local only.
	KeyMigrationSentinel Key = "migration-in-progress"
)

// ProgressKeys are the keys removed by a progress reset.
var ProgressKeys = []Key{
	KeyChapterProgress,
	KeySaves,
	KeyStats,
	KeyAchievements,
	KeyPlayState,
}

// AllKeys lists every key a store may hold.
var AllKeys = append(slices.Clone(ProgressKeys), KeySettings, KeyMigrationSentinel)

// Entry is one key of a multi-key write. A nil Value removes the key.
type Entry struct {
	Key   Key
	Value []byte
}

// Store reads and writes opaque JSON documents by key.
type Store interface {
	// Read returns the stored value; ok is false when the key is absent.
	Read(ctx context.Context, key Key) (value []byte, ok bool, err error)
	Write(ctx context.Context, key Key, value []byte) error
	// WriteAll applies every entry or none of them.
	WriteAll(ctx context.Context, entries []Entry) error
	// RemoveAll removes every key or none of them.
	RemoveAll(ctx context.Context, keys []Key) error
}
