// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/go-crypt/x/blake2b"
)

const defaultTTL = 7 * 24 * time.Hour

// Cache is a badger-backed embedding cache. Entries are keyed by a BLAKE2b
// hash of (provider, text) so identical content embeds once per provider.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime. Default: 7 days.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger.With("component", "embedding-cache")
	}
}

// Open opens a cache at the specified path, creating the directory if it
// doesn't exist. An empty path with inMemory=true opens a transient cache
// for testing.
func Open(filePath string, inMemory bool, opts ...Option) (*Cache, error) {
	var badgerOpts badger.Options

	if inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		badgerOpts = badger.DefaultOptions(filePath)
	}

	c := &Cache{
		ttl:    defaultTTL,
		logger: slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}

	badgerOpts.Logger = &badgerLoggerAdapter{logger: c.logger}
	badgerOpts.Compression = options.None

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	c.db = db

	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey hashes (provider, text) into a fixed-size key.
func cacheKey(provider, text string) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum([]byte("emb:"))
}

// Get returns the cached vector for (provider, text), or ok=false on miss.
// Corrupt entries are treated as misses.
func (c *Cache) Get(provider, text string) ([]float32, bool) {
	key := cacheKey(provider, text)

	var vector []float32
	err := c.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry, err := unmarshalEntry(val)
			if err != nil {
				return err
			}
			vector = entry.Vector
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Debug("cache read failed", "err", err)
		}
		return nil, false
	}
	return vector, true
}

// Put stores a vector for (provider, text) with the configured TTL.
func (c *Cache) Put(provider, text string, vector []float32) error {
	key := cacheKey(provider, text)
	value := marshalEntry(&entry{
		Provider:  provider,
		Vector:    vector,
		CreatedAt: time.Now().Unix(),
	})

	return c.db.Update(func(tx *badger.Txn) error {
		e := badger.NewEntry(key, value).WithTTL(c.ttl)
		return tx.SetEntry(e)
	})
}
