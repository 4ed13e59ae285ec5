package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes    = []byte("nodes")
	bucketNetwork  = []byte("network")
	bucketCounters = []byte("counters")

	keyNCPInfo = []byte("ncp")
	keyBackup  = []byte("backup")
	keyLatest  = []byte("latest")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketNetwork, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// put marshals v under key in bucket.
func (s *BoltStore) put(bucket, key []byte, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// get unmarshals the value under key into v, or returns ErrNotFound.
func (s *BoltStore) get(bucket, key []byte, what string, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) SaveNCPInfo(info *NCPInfo) error {
	return s.put(bucketNetwork, keyNCPInfo, info)
}

func (s *BoltStore) GetNCPInfo() (*NCPInfo, error) {
	var info NCPInfo
	if err := s.get(bucketNetwork, keyNCPInfo, "ncp info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *BoltStore) SaveBackup(nb *NetworkBackup) error {
	// Use internal storage struct to persist the network key.
	st := networkBackupStorage{
		NodeType:          nb.NodeType,
		Channel:           nb.Channel,
		Channels:          nb.Channels,
		PanID:             nb.PanID,
		ExtendedPanID:     nb.ExtendedPanID,
		RadioTxPower:      nb.RadioTxPower,
		NwkUpdateID:       nb.NwkUpdateID,
		NetworkKey:        nb.NetworkKey,
		KeySequenceNumber: nb.KeySequenceNumber,
		FrameCounter:      nb.FrameCounter,
		CoordinatorEUI64:  nb.CoordinatorEUI64,
		SavedAt:           nb.SavedAt,
	}
	return s.put(bucketNetwork, keyBackup, st)
}

func (s *BoltStore) GetBackup() (*NetworkBackup, error) {
	var st networkBackupStorage
	if err := s.get(bucketNetwork, keyBackup, "network backup", &st); err != nil {
		return nil, err
	}
	return &NetworkBackup{
		NodeType:          st.NodeType,
		Channel:           st.Channel,
		Channels:          st.Channels,
		PanID:             st.PanID,
		ExtendedPanID:     st.ExtendedPanID,
		RadioTxPower:      st.RadioTxPower,
		NwkUpdateID:       st.NwkUpdateID,
		NetworkKey:        st.NetworkKey,
		KeySequenceNumber: st.KeySequenceNumber,
		FrameCounter:      st.FrameCounter,
		CoordinatorEUI64:  st.CoordinatorEUI64,
		SavedAt:           st.SavedAt,
	}, nil
}

func (s *BoltStore) SaveNode(n *Node) error {
	return s.put(bucketNodes, []byte(n.EUI64), n)
}

func (s *BoltStore) GetNode(eui64 string) (*Node, error) {
	var n Node
	if err := s.get(bucketNodes, []byte(eui64), "node "+eui64, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *BoltStore) DeleteNode(eui64 string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNodes)
		}
		return b.Delete([]byte(eui64))
	})
}

func (s *BoltStore) ListNodes() ([]*Node, error) {
	var nodes []*Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if b == nil {
			return nil // no bucket = no nodes
		}
		nodes = make([]*Node, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			nodes = append(nodes, &n)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(eui64 string, fn func(n *Node) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketNodes)
		}
		n := Node{EUI64: eui64}
		if data := b.Get([]byte(eui64)); data != nil {
			if err := json.Unmarshal(data, &n); err != nil {
				return err
			}
		}
		if err := fn(&n); err != nil {
			return err
		}
		n.EUI64 = eui64
		data, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		return b.Put([]byte(eui64), data)
	})
}

func (s *BoltStore) SaveCounters(c *CountersSnapshot) error {
	return s.put(bucketCounters, keyLatest, c)
}

func (s *BoltStore) GetCounters() (*CountersSnapshot, error) {
	var c CountersSnapshot
	if err := s.get(bucketCounters, keyLatest, "counters", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
