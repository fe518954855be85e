package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

var ErrEmptyName = errors.New("Cache name must not be empty")

// Storage opens named caches.
// Several caches may live in the same storage, separated by name.
type Storage interface {
	// Open returns the cache with the given name, creating it if needed.
	Open(name string) (Cache, error)
}

// Cache is a persistent key-value store for serialized HTTP responses.
// Keys are normalized URLs. There is no expiry: entries live until overwritten.
//
// Implementations must be thread-safe!
type Cache interface {
	// Name returns the name the cache was opened with.
	Name() string
	// Get returns the stored bytes for the given key, if they exist.
	// It also returns a boolean indicating whether the key was found.
	Get(key string) ([]byte, bool, error)
	// Put stores the bytes under the given key, replacing any previous entry.
	Put(key string, bytes []byte) error
	// PutAll stores all entries, or none of them if any write fails.
	PutAll(entries []CacheEntry) error
	// Keys calls the given callback for each key, in key order.
	Keys(cb func(string)) error
}

type CacheEntry struct {
	Key   string
	Bytes []byte
}

type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStorage opens the storage with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStorage(filename string) (SQLiteStorage, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStorage{}, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		name TEXT NOT NULL,
		key TEXT NOT NULL,
		bytes BLOB,
		PRIMARY KEY (name, key)
	)`)
	if err != nil {
		db.Close()
		return SQLiteStorage{}, fmt.Errorf("Could not create cache table: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return SQLiteStorage{}, err
	}
	return SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStorage) Open(name string) (Cache, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := s.db.Ping(); err != nil {
		return nil, err
	}
	return SQLiteCache{name: name, storage: s}, nil
}

// Close closes the underlying database.
func (s SQLiteStorage) Close() error {
	return s.db.Close()
}

type SQLiteCache struct {
	name    string
	storage SQLiteStorage
}

func (c SQLiteCache) Name() string {
	return c.name
}

func (c SQLiteCache) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := c.storage.db.QueryRow("SELECT bytes FROM cache WHERE name = ? AND key = ?", c.name, key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (c SQLiteCache) Put(key string, bytes []byte) error {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	_, err := c.storage.db.Exec("INSERT OR REPLACE INTO cache (name, key, bytes) VALUES (?, ?, ?)", c.name, key, bytes)
	return err
}

func (c SQLiteCache) PutAll(entries []CacheEntry) error {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	tx, err := c.storage.db.Begin()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		_, err := tx.Exec("INSERT OR REPLACE INTO cache (name, key, bytes) VALUES (?, ?, ?)", c.name, entry.Key, entry.Bytes)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("Could not write %s: %w", entry.Key, err)
		}
	}
	return tx.Commit()
}

func (c SQLiteCache) Keys(cb func(string)) error {
	rows, err := c.storage.db.Query("SELECT key FROM cache WHERE name = ? ORDER BY key", c.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

type MemStorage struct {
	mutex  *sync.Mutex
	caches map[string]MemCache
}

func NewMemStorage() MemStorage {
	return MemStorage{
		mutex:  &sync.Mutex{},
		caches: make(map[string]MemCache),
	}
}

func (m MemStorage) Open(name string) (Cache, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c, ok := m.caches[name]
	if !ok {
		c = MemCache{
			name:  name,
			mutex: &sync.RWMutex{},
			db:    make(map[string][]byte),
		}
		m.caches[name] = c
	}
	return c, nil
}

type MemCache struct {
	name  string
	mutex *sync.RWMutex
	db    map[string][]byte
}

func (m MemCache) Name() string {
	return m.name
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	bytes, ok := m.db[key]
	return bytes, ok, nil
}

func (m MemCache) Put(key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = bytes
	return nil
}

func (m MemCache) PutAll(entries []CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, entry := range entries {
		m.db[entry.Key] = entry.Bytes
	}
	return nil
}

func (m MemCache) Keys(cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
	return nil
}
