package bytecodestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.BytecodeStore = (*BadgerStore)(nil)

const (
	keyPrefix = "module/"
	stampSize = 8
)

// BadgerOptions configures the badger-backed store.
type BadgerOptions struct {
	// Logger receives badger's warnings and errors. Nil uses slog.Default().
	Logger *slog.Logger

	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps the database in memory only.
	InMemory bool
}

// BadgerStore keeps module records in a badger database. Each value is
// prefixed with the save time in unix nanoseconds.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerStore opens the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("bytecodestore: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Load returns the stored bytes and their save time.
func (s *BadgerStore) Load(name string) ([]byte, time.Time, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, fmt.Errorf("cache entry %s: %w", name, fs.ErrNotExist)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if len(val) < stampSize {
		return nil, time.Time{}, fmt.Errorf("cache entry %s: truncated value", name)
	}
	stamp := time.Unix(0, int64(binary.LittleEndian.Uint64(val))) //nolint:gosec // G115: written by Save
	return val[stampSize:], stamp, nil
}

// Save stores data stamped with the current time.
func (s *BadgerStore) Save(name string, data []byte) error {
	val := make([]byte, stampSize+len(data))
	binary.LittleEndian.PutUint64(val, uint64(s.now().UnixNano())) //nolint:gosec // G115: post-1970 timestamps
	copy(val[stampSize:], data)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), val)
	})
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *BadgerStore) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + name))
	})
}

// Names lists every stored module.
func (s *BadgerStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return names, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's log output to slog, dropping info and debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
