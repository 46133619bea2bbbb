// Package checkpointer implements durable storage of serializable
// objects, such as agents, together with metadata describing them
package checkpointer

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

var (
	// ErrNotFound is returned when restoring from a handle which does
	// not refer to a checkpoint
	ErrNotFound = errors.New("checkpoint not found")

	// ErrIncompatible is returned when restoring a checkpoint into an
	// object it was not saved from
	ErrIncompatible = errors.New("incompatible checkpoint")

	// ErrCorrupt is returned when a checkpoint cannot be decoded
	ErrCorrupt = errors.New("corrupt checkpoint")
)

// Handle refers to a saved checkpoint. Handles returned by Save can be
// passed to Open in a later process.
type Handle string

// Meta describes a checkpoint
type Meta struct {
	RunID          string
	AgentType      string
	Env            string
	ObservationLen int
	NumActions     int
	Iteration      int
	Created        time.Time

	// Handle is set for checkpoints returned by List
	Handle Handle
}

// Compatible returns an error wrapping ErrIncompatible if an object
// described by want cannot be restored from a checkpoint described by
// m. Only the agent type, environment, and observation and action
// sizes are compared.
func (m Meta) Compatible(want Meta) error {
	var diffs []string
	if m.AgentType != want.AgentType {
		diffs = append(diffs, fmt.Sprintf("agent type %q != %q",
			m.AgentType, want.AgentType))
	}
	if m.Env != want.Env {
		diffs = append(diffs, fmt.Sprintf("env %q != %q", m.Env, want.Env))
	}
	if m.ObservationLen != want.ObservationLen {
		diffs = append(diffs, fmt.Sprintf("observation length %v != %v",
			m.ObservationLen, want.ObservationLen))
	}
	if m.NumActions != want.NumActions {
		diffs = append(diffs, fmt.Sprintf("actions %v != %v", m.NumActions,
			want.NumActions))
	}

	if len(diffs) > 0 {
		return fmt.Errorf("%w: %v", ErrIncompatible, strings.Join(diffs, ", "))
	}
	return nil
}

// Store saves and restores checkpoints
type Store interface {
	// Save saves obj and its metadata, returning the handle of the
	// checkpoint. A failed Save leaves no partial checkpoint behind.
	Save(ctx context.Context, obj Serializable, meta Meta) (Handle, error)

	// Restore decodes the checkpoint h into obj if the checkpoint's
	// metadata is compatible with want
	Restore(ctx context.Context, obj Serializable, h Handle, want Meta) error

	// List returns the metadata of all checkpoints in the Store,
	// oldest first
	List(ctx context.Context) ([]Meta, error)

	Close() error
}

// envelope is the persisted form of a checkpoint
type envelope struct {
	Meta  Meta
	State []byte
}

func encode(obj Serializable, meta Meta) ([]byte, error) {
	state, err := obj.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("could not encode object: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{meta, state}); err != nil {
		return nil, fmt.Errorf("could not encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (envelope, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return env, nil
}

// restore checks the compatibility of a decoded checkpoint and decodes
// its state into obj
func restore(data []byte, obj Serializable, want Meta) error {
	env, err := decode(data)
	if err != nil {
		return err
	}
	if err := env.Meta.Compatible(want); err != nil {
		return err
	}
	if err := obj.GobDecode(env.State); err != nil {
		return fmt.Errorf("%w: could not decode state: %v", ErrCorrupt, err)
	}
	return nil
}

// Backends
const (
	File   = "file"
	SQLite = "sqlite"
)

// New returns a Store of the given kind rooted at directory root
func New(kind, root string) (Store, error) {
	switch kind {
	case "", File:
		return NewFileStore(root)
	case SQLite:
		return NewSQLiteStore(context.Background(), SQLitePath(root))
	default:
		return nil, fmt.Errorf("new: unsupported checkpoint backend %q", kind)
	}
}

// Open returns a Store which can restore h, chosen by the form of h.
// Nothing is created on disk when h does not exist.
func Open(h Handle) (Store, error) {
	if strings.HasPrefix(string(h), sqliteScheme) {
		path, _, err := parseSQLiteHandle(h)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if err := exists(path); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		return NewSQLiteStore(context.Background(), path)
	}

	root, err := fileRoot(h)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := exists(string(h)); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return NewFileStore(root)
}
