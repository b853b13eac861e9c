package searches

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

var bucketSearches = []byte("searches")

// Store persists search records. In-progress saves carry counters
// only; the response list lands in exactly one final write at the
// terminal transition.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the searches database.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open searches database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSearches)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts a search record as given.
func (s *Store) Put(search types.Search) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(search)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSearches).Put([]byte(search.ID), data)
	})
}

// Get returns one search. Responses are included only when asked for;
// list views never pay for them.
func (s *Store) Get(id string, includeResponses bool) (types.Search, error) {
	var search types.Search
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSearches).Get([]byte(id))
		if data == nil {
			return errdefs.NotFoundf("search %s", id)
		}
		return json.Unmarshal(data, &search)
	})
	if err != nil {
		return types.Search{}, err
	}
	if !includeResponses {
		search.Responses = nil
	}
	return search, nil
}

// List returns every search without responses, newest first.
func (s *Store) List() ([]types.Search, error) {
	var searches []types.Search
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSearches).ForEach(func(k, v []byte) error {
			var search types.Search
			if err := json.Unmarshal(v, &search); err != nil {
				return err
			}
			search.Responses = nil
			searches = append(searches, search)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(searches, func(i, j int) bool {
		return searches[i].StartedAt.After(searches[j].StartedAt)
	})
	return searches, nil
}

// Delete removes one search.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSearches).Get([]byte(id)) == nil {
			return errdefs.NotFoundf("search %s", id)
		}
		return tx.Bucket(bucketSearches).Delete([]byte(id))
	})
}

// Prune deletes terminal searches that ended before the cutoff,
// returning how many went.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSearches)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var search types.Search
			if err := json.Unmarshal(v, &search); err != nil {
				continue
			}
			if !search.State.Terminal() || search.EndedAt == nil || search.EndedAt.After(cutoff) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
