// Package store keeps saved network states in a buntdb database.
//
// Each snapshot is stored under two keys: snapshot:<id>:data holds the lz4-compressed
// output of track.Network.Save, and snapshot:<id>:meta holds a JSON Meta.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/codec"
	"nyiyui.ca/hato/heisoku/track"
)

var ErrNotFound = errors.New("snapshot not found")

const tickIndex = "tick"

type Meta struct {
	ID      uuid.UUID `json:"id"`
	Comment string    `json:"comment"`
	Tick    int       `json:"tick"`
	Created time.Time `json:"created"`
	// Size is the length of the uncompressed data.
	Size int `json:"size"`
	// Compressed is false when the data did not compress and is stored as-is.
	Compressed bool `json:"compressed"`
}

type Store struct {
	db *buntdb.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.Always,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("config: %w", err)
	}
	err = db.ReplaceIndex(tickIndex, "snapshot:*:meta", buntdb.IndexJSON("tick"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func dataKey(id uuid.UUID) string { return fmt.Sprintf("snapshot:%s:data", id) }
func metaKey(id uuid.UUID) string { return fmt.Sprintf("snapshot:%s:meta", id) }

// Save stores the current state of n and returns its metadata.
// Call it inside a step, or while no step runs.
func (s *Store) Save(n *track.Network, comment string) (Meta, error) {
	var buf bytes.Buffer
	err := n.Save(codec.NewWriter(&buf))
	if err != nil {
		return Meta{}, fmt.Errorf("save network: %w", err)
	}
	m := Meta{
		ID:      uuid.New(),
		Comment: comment,
		Tick:    n.Tick(),
		Created: time.Now(),
	}
	return m, s.Put(m, buf.Bytes())
}

// Put stores raw saved data under m.ID, filling in m's size and compression.
func (s *Store) Put(m Meta, raw []byte) error {
	data, compressed, err := compress(raw)
	if err != nil {
		return err
	}
	m.Size = len(raw)
	m.Compressed = compressed
	meta, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(dataKey(m.ID), string(data), nil)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(metaKey(m.ID), string(meta), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", m.ID, err)
	}
	zap.S().Debugw("snapshot stored",
		"id", m.ID,
		"tick", m.Tick,
		"size", m.Size,
		"stored", len(data))
	return nil
}

// Get returns the metadata and uncompressed data of a snapshot.
func (s *Store) Get(id uuid.UUID) (Meta, []byte, error) {
	var m Meta
	var data string
	err := s.db.View(func(tx *buntdb.Tx) error {
		meta, err := tx.Get(metaKey(id))
		if err != nil {
			return err
		}
		err = json.Unmarshal([]byte(meta), &m)
		if err != nil {
			return fmt.Errorf("unmarshal meta: %w", err)
		}
		data, err = tx.Get(dataKey(id))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return Meta{}, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Meta{}, nil, fmt.Errorf("read %s: %w", id, err)
	}
	raw, err := decompress([]byte(data), m)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("%s: %w", id, err)
	}
	return m, raw, nil
}

// Load restores snapshot id into n, which must have the same sections the snapshot was taken on.
// It waits for a running step to finish. References to trains n does not know are dropped.
func (s *Store) Load(id uuid.UUID, n *track.Network) (Meta, error) {
	m, raw, err := s.Get(id)
	if err != nil {
		return Meta{}, err
	}
	n.Locked(func() {
		err = n.Restore(codec.NewReader(bytes.NewReader(raw)))
		if err == nil {
			n.RestoreTrains()
		}
	})
	if err != nil {
		return Meta{}, fmt.Errorf("restore %s: %w", id, err)
	}
	return m, nil
}

// List returns the metadata of every snapshot, ordered by tick.
func (s *Store) List() ([]Meta, error) {
	var ms []Meta
	var bad error
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(tickIndex, func(key, value string) bool {
			var m Meta
			err := json.Unmarshal([]byte(value), &m)
			if err != nil {
				bad = fmt.Errorf("key %s: unmarshal meta: %w", key, err)
				return false
			}
			if kid, err := ParseKey(key); err != nil || kid != m.ID {
				bad = fmt.Errorf("key %s: meta for %s", key, m.ID)
				return false
			}
			ms = append(ms, m)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return ms, bad
}

// Delete removes a snapshot.
func (s *Store) Delete(id uuid.UUID) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(metaKey(id))
		if err != nil {
			return err
		}
		_, err = tx.Delete(dataKey(id))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return err
}

// ParseKey returns the id in a snapshot key.
func ParseKey(key string) (uuid.UUID, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "snapshot" {
		return uuid.UUID{}, fmt.Errorf("malformed key %s", key)
	}
	return uuid.Parse(parts[1])
}

func compress(src []byte) ([]byte, bool, error) {
	if len(src) == 0 {
		return []byte{}, false, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(src) {
		return src, false, nil
	}
	return dst[:n], true, nil
}

func decompress(src []byte, m Meta) ([]byte, error) {
	if !m.Compressed {
		return src, nil
	}
	dst := make([]byte, m.Size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != m.Size {
		return nil, fmt.Errorf("lz4 decompress: expected %d bytes, got %d", m.Size, n)
	}
	return dst, nil
}
