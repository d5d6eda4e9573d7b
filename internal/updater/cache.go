package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var buckets = struct {
	Metadata []byte
	Checks   []byte
}{
	Metadata: []byte("__metadata__"),
	Checks:   []byte("checks"),
}

var keys = struct {
	Version   []byte
	LastCheck []byte
}{
	Version:   []byte("version"),
	LastCheck: []byte("last_check"),
}

const cacheVersion = 1

// Check records the outcome of a successful update check.
type Check struct {
	CheckedAt time.Time `json:"checked_at"`
	// LatestVersion is the version advertised by the feed, whether or not it was newer.
	LatestVersion string `json:"latest_version"`
}

// Cache persists the last update check between runs.
type Cache struct {
	db *bbolt.DB
}

func OpenCache(path string) (_ *Cache, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		metadata, err := tx.CreateBucketIfNotExists(buckets.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(buckets.Checks); err != nil {
			return err
		}
		if versionBytes, err := json.Marshal(cacheVersion); err != nil {
			return err
		} else {
			return metadata.Put(keys.Version, versionBytes)
		}
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db}, nil
}

// LastCheck returns the most recent check, or false if there has never been one.
func (c *Cache) LastCheck() (check Check, ok bool, err error) {
	err = c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(buckets.Checks).Get(keys.LastCheck)
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &check)
	})
	return check, ok, err
}

func (c *Cache) RecordCheck(check Check) error {
	data, err := json.Marshal(check)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(buckets.Checks).Put(keys.LastCheck, data)
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}
