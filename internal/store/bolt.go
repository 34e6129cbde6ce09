// Package store persists long-lived assistant state in a bbolt file.
// Command statistics live in their own bucket, one JSON value per
// normalized command.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"luna/internal/apperr"
	"luna/internal/convo"
)

var (
	bucketStats  = []byte("stats")
	bucketMisses = []byte("misses")
)

type Bolt struct {
	db *bolt.DB
}

var _ convo.StatsStore = (*Bolt)(nil)

func Open(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, apperr.Database(apperr.DatabaseLoad, "open state db", err).WithSubject(path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketStats, bucketMisses} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, apperr.Database(apperr.DatabaseLoad, "init buckets", err).WithSubject(path)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) LoadStats() (map[string]convo.Stats, error) {
	out := map[string]convo.Stats{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStats).ForEach(func(k, v []byte) error {
			var s convo.Stats
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("stats %q: %w", k, err)
			}
			out[string(k)] = s
			return nil
		})
	})
	if err != nil {
		return out, apperr.Database(apperr.DatabaseCorrupted, "load stats", err)
	}
	return out, nil
}

func (b *Bolt) SaveStats(key string, s convo.Stats) error {
	v, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStats).Put([]byte(key), v)
	})
	if err != nil {
		return apperr.Database(apperr.DatabaseSave, "save stats", err)
	}
	return nil
}

// Miss is an utterance the grammar could not handle.
type Miss struct {
	Text  string    `json:"text"`
	Count int       `json:"count"`
	Last  time.Time `json:"last"`
}

// RecordMiss counts an utterance that ended in clarification, so grammar
// authors can see what users actually say.
func (b *Bolt) RecordMiss(text string, at time.Time) error {
	key := []byte(convo.Key(text))
	if len(key) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketMisses)
		m := Miss{Text: string(key)}
		if v := bk.Get(key); v != nil {
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
		}
		m.Count++
		m.Last = at
		v, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return bk.Put(key, v)
	})
	if err != nil {
		return apperr.Database(apperr.DatabaseSave, "record miss", err)
	}
	return nil
}

// Misses returns recorded misses in key order.
func (b *Bolt) Misses() ([]Miss, error) {
	var out []Miss
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMisses).ForEach(func(_, v []byte) error {
			var m Miss
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, apperr.Database(apperr.DatabaseCorrupted, "load misses", err)
	}
	return out, nil
}
