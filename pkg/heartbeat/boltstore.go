package heartbeat

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

var bucketHeartbeats = []byte("heartbeats")

// BoltStore is the bbolt-backed Store, grounded on the same
// bucket-per-entity pattern as the Catalog Gateway's default backing
// (pkg/catalog.BoltGateway).
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates a bbolt database at path and ensures the
// heartbeats bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHeartbeats)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Put(hb types.Heartbeat) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeartbeats)
		data, err := json.Marshal(hb)
		if err != nil {
			return err
		}
		return b.Put([]byte(heartbeatKey(hb.Executable, hb.Hostname, hb.PID, hb.ThreadID)), data)
	})
}

func (s *BoltStore) Delete(executable, hostname string, pid int, threadID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeartbeats)
		return b.Delete([]byte(heartbeatKey(executable, hostname, pid, threadID)))
	})
}

func (s *BoltStore) List(executable string) ([]types.Heartbeat, error) {
	var out []types.Heartbeat
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeartbeats)
		return b.ForEach(func(k, v []byte) error {
			var hb types.Heartbeat
			if err := json.Unmarshal(v, &hb); err != nil {
				return err
			}
			if hb.Executable == executable {
				out = append(out, hb)
			}
			return nil
		})
	})
	return out, err
}
