// Package store keeps final predictions of protein families in a bolt
// database.
package store

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("store")

// MAIN is the bucket name for all the records.
var MAIN = []byte("main")

// Record is a stored run of a single family.
type Record struct {
	Parameters map[string]float64
	// Posteriors by node name.
	Posteriors map[string][]float64 `json:",omitempty"`
	Functions  []int                `json:",omitempty"`
	Iterations int
	Delta      float64
	Converged  bool
}

// Store saves records under a family key.
type Store struct {
	db  *bolt.DB
	key []byte
}

// Open opens or creates a database file.
func Open(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
}

// New creates a store for the family key.
func New(db *bolt.DB, key string) *Store {
	return &Store{
		db:  db,
		key: []byte(key),
	}
}

// Save saves a record.
func (s *Store) Save(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Error("Error serializing record", err)
		return err
	}
	err = SaveData(s.db, s.key, data)
	if err != nil {
		log.Error("Error saving record", err)
	}
	return err
}

// Load returns the stored record or nil if there is none.
func (s *Store) Load() (*Record, error) {
	var rec *Record

	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	if err = json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}

	if rec == nil || len(rec.Parameters) == 0 {
		return nil, nil
	}

	log.Infof("Found stored run for %s (iter=%v, delta=%v)", s.key, rec.Iterations, rec.Delta)
	return rec, nil
}

// Keys lists all the stored families.
func Keys(db *bolt.DB) (keys []string, err error) {
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return
}

// SaveData saves a value in the database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads a value from the database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		// v is valid only inside the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
