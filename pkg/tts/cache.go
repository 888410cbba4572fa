package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheMeta identifies a synthesis result. Any field change produces a
// different key, so a voice or prosody tweak never serves stale audio.
// Field order is fixed; the canonical encoding is the JSON of this struct.
type CacheMeta struct {
	Engine     string            `json:"engine"`
	EngineVer  string            `json:"engine_ver"`
	Voice      string            `json:"voice"`
	Lang       string            `json:"lang"`
	Format     string            `json:"format"`
	SampleRate int               `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Prosody    map[string]string `json:"prosody,omitempty"`
	Text       string            `json:"normalized_text"`
}

// CacheKey hashes the canonical encoding of the metadata. Prosody maps
// marshal with sorted keys, so the encoding is deterministic.
func CacheKey(meta CacheMeta) string {
	meta.Text = NormalizeText(meta.Text)
	canon, _ := json.Marshal(meta)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// NormalizeText collapses whitespace so formatting differences do not
// fragment the cache.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// cacheEntry is the index record stored per key.
type cacheEntry struct {
	Voice     string    `msgpack:"voice"`
	Text      string    `msgpack:"text"`
	SizeBytes int64     `msgpack:"size_bytes"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Cache is a shared content-addressed store of synthesized WAVs: audio
// lives as {key}.wav files, the metadata index in a badger database.
// Concurrent writers of the same key converge because the payload is
// deterministic and the file write is a tmp+rename.
type Cache struct {
	dir string
	db  *badger.DB
}

// OpenCache opens (or creates) the cache at dir.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "index"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	opts := badger.DefaultOptions(filepath.Join(dir, "index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	return &Cache{dir: dir, db: db}, nil
}

// Close releases the index.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) wavPath(key string) string {
	return filepath.Join(c.dir, key+".wav")
}

// Get copies the cached WAV for key to dst. It reports false when the key
// is unknown or the audio file has been pruned from under the index.
func (c *Cache) Get(key, dst string) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}
	src := c.wavPath(key)
	if _, err := os.Stat(src); err != nil {
		return false, nil
	}
	if err := copyFile(src, dst); err != nil {
		return false, fmt.Errorf("cache copy: %w", err)
	}
	return true, nil
}

// Put stores the WAV at srcPath under key and records the index entry.
func (c *Cache) Put(key, srcPath string, meta CacheMeta) error {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	dst := c.wavPath(key)
	tmp := dst + ".tmp"
	if err := copyFile(srcPath, tmp); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache put: %w", err)
	}

	entry, err := msgpack.Marshal(cacheEntry{
		Voice:     meta.Voice,
		Text:      NormalizeText(meta.Text),
		SizeBytes: fi.Size(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), entry)
	})
	if err != nil {
		return fmt.Errorf("cache index: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
