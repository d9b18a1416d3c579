// Package hintstore persists an on-disk mirror of a root payment's
// channel hints and excluded-node set, keyed by local node id. It is
// purely a cache: its absence never blocks a payment, and the
// in-memory RootState in package payment (spec.md §3) stays the
// authoritative source of truth for any payment currently in flight.
// The bucket-management idiom is adapted from channeldb/db.go.
package hintstore

import (
	"encoding/binary"
	"fmt"

	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/payment"
	"github.com/lightninglabs/paymentd/route"
	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// hintsBucket is the top-level bucket, keyed by local node id, of
	// per-node sub-buckets holding that node's channel hints.
	hintsBucket = []byte("channel-hints")

	// excludedBucket mirrors hintsBucket for the excluded-node set.
	excludedBucket = []byte("excluded-nodes")

	byteOrder = binary.BigEndian
)

// Store is the on-disk hint cache for one local node. Every method
// opens its own kvdb transaction; callers needing several writes in
// one atomic unit should use Sync.
type Store struct {
	db          kvdb.Backend
	localNodeID route.Vertex
}

// Open opens (creating if absent) a bolt-backed kvdb.Backend at
// dbPath, suitable for passing to New. Mirrors channeldb.Open's
// bolt-opening idiom.
func Open(dbPath string) (kvdb.Backend, error) {
	return kvdb.Create(
		kvdb.BoltBackendName,
		dbPath,
		true,
		kvdb.DefaultDBTimeout,
	)
}

// New opens (creating if needed) the hint store's top-level buckets
// against an already-open backend.
func New(db kvdb.Backend, localNodeID route.Vertex) (*Store, error) {
	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		if _, err := tx.CreateTopLevelBucket(hintsBucket); err != nil {
			return err
		}
		_, err := tx.CreateTopLevelBucket(excludedBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("hintstore: unable to create buckets: %w", err)
	}

	return &Store{db: db, localNodeID: localNodeID}, nil
}

func hintRecordKey(scid lnwire.ShortChannelID, direction uint8) []byte {
	key := make([]byte, 9)
	byteOrder.PutUint64(key[:8], scid.ToUint64())
	key[8] = direction
	return key
}

// Sync writes the full current state of hints and excludedNodes for
// this store's local node, replacing whatever was previously on disk
// for it. Intended to be called once per root after the aggregator
// (package payment) has emitted its final Summary — the hints
// accumulated over that root's lifetime are then available to seed
// the next payment to the same destinations.
func (s *Store) Sync(hints []payment.ChannelHint, excludedNodes []route.Vertex) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		nodeHints, err := s.freshNodeBucket(tx, hintsBucket)
		if err != nil {
			return err
		}
		for _, h := range hints {
			val, err := encodeHint(h)
			if err != nil {
				return err
			}
			key := hintRecordKey(h.SCID, h.Direction)
			if err := nodeHints.Put(key, val); err != nil {
				return err
			}
		}

		nodeExcluded, err := s.freshNodeBucket(tx, excludedBucket)
		if err != nil {
			return err
		}
		for _, v := range excludedNodes {
			if err := nodeExcluded.Put(v[:], []byte{1}); err != nil {
				return err
			}
		}
		return nil
	}, func() {})
}

// freshNodeBucket deletes and recreates this store's local-node
// sub-bucket under top, so a Sync call always reflects exactly the
// current in-memory state rather than accumulating stale entries from
// hints that are no longer tracked.
func (s *Store) freshNodeBucket(tx kvdb.RwTx, top []byte) (kvdb.RwBucket, error) {
	bucket := tx.ReadWriteBucket(top)
	if bucket == nil {
		return nil, fmt.Errorf("hintstore: missing top-level bucket %q", top)
	}
	if bucket.NestedReadWriteBucket(s.localNodeID[:]) != nil {
		if err := bucket.DeleteNestedBucket(s.localNodeID[:]); err != nil {
			return nil, err
		}
	}
	return bucket.CreateBucketIfNotExists(s.localNodeID[:])
}

// Load reads back whatever hints and excluded nodes were last synced
// for this store's local node. Used to seed a fresh RootState before
// the local-hints modifier's own listpeers-derived seeding runs, so a
// freshly started process doesn't forget hard-won failure knowledge
// about channels it isn't currently peered with.
func (s *Store) Load() ([]payment.ChannelHint, []route.Vertex, error) {
	var hints []payment.ChannelHint
	var excluded []route.Vertex

	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		nodeHints, err := s.readNodeBucket(tx, hintsBucket)
		if err != nil {
			return err
		}
		if nodeHints != nil {
			err = nodeHints.ForEach(func(k, v []byte) error {
				h, err := decodeHint(k, v)
				if err != nil {
					return err
				}
				hints = append(hints, h)
				return nil
			})
			if err != nil {
				return err
			}
		}

		nodeExcluded, err := s.readNodeBucket(tx, excludedBucket)
		if err != nil {
			return err
		}
		if nodeExcluded != nil {
			err = nodeExcluded.ForEach(func(k, v []byte) error {
				var vert route.Vertex
				copy(vert[:], k)
				excluded = append(excluded, vert)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, func() {})
	if err != nil {
		return nil, nil, err
	}

	return hints, excluded, nil
}

func (s *Store) readNodeBucket(tx kvdb.RTx, top []byte) (kvdb.RBucket, error) {
	bucket := tx.ReadBucket(top)
	if bucket == nil {
		return nil, nil
	}
	return bucket.NestedReadBucket(s.localNodeID[:]), nil
}

// encodeHint serializes a ChannelHint to its on-disk form: a single
// enabled byte followed by the 8-byte estimated capacity.
func encodeHint(h payment.ChannelHint) ([]byte, error) {
	buf := make([]byte, 9)
	if h.Enabled {
		buf[0] = 1
	}
	byteOrder.PutUint64(buf[1:], uint64(h.EstimatedCapacity))
	return buf, nil
}

func decodeHint(k, v []byte) (payment.ChannelHint, error) {
	if len(k) != 9 {
		return payment.ChannelHint{}, fmt.Errorf("hintstore: malformed hint key, len=%d", len(k))
	}
	if len(v) != 9 {
		return payment.ChannelHint{}, fmt.Errorf("hintstore: malformed hint record, len=%d", len(v))
	}
	return payment.ChannelHint{
		SCID:              lnwire.NewShortChanIDFromInt(byteOrder.Uint64(k[:8])),
		Direction:         k[8],
		Enabled:           v[0] == 1,
		EstimatedCapacity: lnwire.MilliSatoshi(byteOrder.Uint64(v[1:])),
	}, nil
}
