package prefs

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "preferences"

	// WebhookURLKey is the key holding the spreadsheet webhook URL.
	WebhookURLKey = "sheetUrl"
)

// Store defines the interface for persisting the webhook URL
type Store interface {
	// Get returns the stored webhook URL, or "" when none was saved
	Get() (string, error)

	// Set persists the webhook URL
	Set(value string) error

	// Close closes the underlying storage
	Close() error
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the preference database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get returns the stored webhook URL
func (b *BoltStore) Get() (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %s missing", bucketName)
		}
		value = string(bucket.Get([]byte(WebhookURLKey)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", WebhookURLKey, err)
	}
	return value, nil
}

// Set persists the webhook URL
func (b *BoltStore) Set(value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %s missing", bucketName)
		}
		return bucket.Put([]byte(WebhookURLKey), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", WebhookURLKey, err)
	}
	return nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
