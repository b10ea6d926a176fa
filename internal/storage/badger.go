/*
Package storage
File: badger.go
Description:
    Embedded persistence for artifact blobs, backed by BadgerDB.

    Key layout:
        artifact/<artifactID>  JSON blob (see game.Blob)
        owner/<playerID>       artifactID currently equipped by the player

    The engine itself never blocks on storage; the roster loads blobs on
    first access and flushes dirty artifacts in batches.
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/everforgeworks/galaxies-core/internal/game"
)

var (
	// ErrArtifactNotFound is returned when no blob is stored for an artifact ID.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrOwnerNotFound is returned when a player has no bound artifact.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrOwnerExists is returned when issuing to a player who already holds an artifact.
	ErrOwnerExists = errors.New("owner already bound")
)

const (
	artifactPrefix = "artifact/"
	ownerPrefix    = "owner/"
)

// Config holds configuration for the BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory enables in-memory mode (no disk persistence). Useful for tests.
	InMemory bool
	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store persists artifact blobs and player bindings.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory store. Data is lost on Close.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadArtifact returns the stored blob for id.
func (s *Store) LoadArtifact(ctx context.Context, id string) (game.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(artifactPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("load artifact %s: %w", id, ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", id, err)
	}
	return game.DecodeBlob(data)
}

// SaveArtifact writes blob under id, replacing any previous value.
func (s *Store) SaveArtifact(ctx context.Context, id string, blob game.Blob) error {
	return s.SaveArtifacts(ctx, map[string]game.Blob{id: blob})
}

// SaveArtifacts writes several blobs in one transaction.
func (s *Store) SaveArtifacts(ctx context.Context, blobs map[string]game.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded := make(map[string][]byte, len(blobs))
	for id, blob := range blobs {
		data, err := blob.Encode()
		if err != nil {
			return fmt.Errorf("save artifact %s: %w", id, err)
		}
		encoded[id] = data
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for id, data := range encoded {
			if err := txn.Set([]byte(artifactPrefix+id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}
	return nil
}

// LookupOwner returns the artifact ID bound to player.
func (s *Store) LookupOwner(ctx context.Context, player string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ownerPrefix + player))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("lookup owner %s: %w", player, ErrOwnerNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup owner %s: %w", player, err)
	}
	return id, nil
}

// IssueArtifact stores a new artifact blob and binds it to player in one
// transaction. It fails with ErrOwnerExists if player already holds one.
func (s *Store) IssueArtifact(ctx context.Context, player, id string, blob game.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := blob.Encode()
	if err != nil {
		return fmt.Errorf("issue artifact %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		owner := []byte(ownerPrefix + player)
		if _, err := txn.Get(owner); err == nil {
			return ErrOwnerExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(artifactPrefix+id), data); err != nil {
			return err
		}
		return txn.Set(owner, []byte(id))
	})
	if err != nil {
		return fmt.Errorf("issue artifact %s to %s: %w", id, player, err)
	}
	return nil
}

// ForEachArtifact calls fn for every stored artifact blob in key order.
// Iteration stops at the first error returned by fn.
func (s *Store) ForEachArtifact(ctx context.Context, fn func(id string, blob game.Blob) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(artifactPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), artifactPrefix)
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read artifact %s: %w", id, err)
			}
			blob, err := game.DecodeBlob(data)
			if err != nil {
				return fmt.Errorf("artifact %s: %w", id, err)
			}
			if err := fn(id, blob); err != nil {
				return err
			}
		}
		return nil
	})
}
