// Package state persists what the build runner did last time so unchanged targets can be skipped.
package state

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

var (
	actionsBucket = []byte("actions")
	optionsBucket = []byte("options")
)

// Record describes the last successful run of a target
type Record struct {
	Fingerprint string
	Outputs     []string
	Updated     time.Time
}

// Store is a bbolt database holding one Record per target label
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path
func Open(path string) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{actionsBucket, optionsBucket} {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize buckets")
	}

	return &Store{db: db}, nil
}

// Close releases the database lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record stored for label
func (s *Store) Get(label string) (Record, bool, error) {
	var record Record
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(actionsBucket).Get([]byte(label))
		if item == nil {
			return nil
		}

		found = true
		return gob.NewDecoder(bytes.NewReader(item)).Decode(&record)
	})
	if err != nil {
		return record, false, eris.Wrapf(err, "failed to read state for %s", label)
	}

	return record, found, nil
}

// Put replaces the record for label
func (s *Store) Put(label string, record Record) error {
	buf := bytes.Buffer{}
	err := gob.NewEncoder(&buf).Encode(record)
	if err != nil {
		return eris.Wrapf(err, "failed to encode state for %s", label)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(actionsBucket).Put([]byte(label), buf.Bytes())
	})
}

// Forget removes the record for label
func (s *Store) Forget(label string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(actionsBucket).Delete([]byte(label))
	})
}

// Labels lists all labels with a record
func (s *Store) Labels() ([]string, error) {
	result := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(actionsBucket).ForEach(func(k, _ []byte) error {
			result = append(result, string(k))
			return nil
		})
	})
	return result, err
}

// SaveOptions remembers the BUILD options used for the last run
func (s *Store) SaveOptions(options map[string]string) error {
	buf := bytes.Buffer{}
	err := gob.NewEncoder(&buf).Encode(options)
	if err != nil {
		return eris.Wrap(err, "failed to encode options")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(optionsBucket).Put([]byte("options"), buf.Bytes())
	})
}

// Options returns the options saved by SaveOptions or an empty map
func (s *Store) Options() (map[string]string, error) {
	options := map[string]string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(optionsBucket).Get([]byte("options"))
		if item == nil {
			return nil
		}

		return gob.NewDecoder(bytes.NewReader(item)).Decode(&options)
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to read options")
	}

	return options, nil
}
