// Package registrystore implements the Registry Store: an embedded
// ordered key/value store accessed behind a tiny facade, with one
// bolt bucket per network id so a single process can host multiple
// chains in one file.
package registrystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/registry"
)

const dbDirPerm = 0o755

// Recognised keys within a network's bucket.
const (
	keyVersion           = "CONDITIONAL_ORDER_REGISTRY_VERSION"
	keyRegistry          = "CONDITIONAL_ORDER_REGISTRY"
	keyLastProcessedBlk  = "LAST_PROCESSED_BLOCK"
	keyLastNotifiedError = "LAST_NOTIFIED_ERROR"
)

// Store is the bbolt-backed Registry Store, satisfying registry.Store.
type Store struct {
	closeOnce sync.Once
	db        *bolt.DB
	log       *logger.Logger
}

var _ registry.Store = (*network)(nil)

// Open opens (creating if absent) a bbolt database at path, ready to be
// scoped per-network via ForNetwork.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("ensure registry store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry store: %w", err)
	}

	return &Store{db: db, log: log.WithComponent("registry-store")}, nil
}

// ForNetwork returns a registry.Store scoped to a single network's
// bucket, creating the bucket on first use.
func (s *Store) ForNetwork(network string) (registry.Store, error) {
	bucketName := []byte("chain_" + network)
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket for network %s: %w", network, err)
	}
	return &network{db: s.db, bucket: bucketName, log: s.log.WithChain(network)}, nil
}

// DB exposes the underlying bbolt handle so a maintenance.Coordinator
// can be built against the same file the registry writes to.
func (s *Store) DB() *bolt.DB { return s.db }

// Networks lists every network currently tracked in the store (backs
// the `list` CLI subcommand).
func (s *Store) Networks() ([]string, error) {
	var networks []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			const prefix = "chain_"
			n := string(name)
			if len(n) > len(prefix) && n[:len(prefix)] == prefix {
				networks = append(networks, n[len(prefix):])
			}
			return nil
		})
	})
	return networks, err
}

// DumpNetworkJSON renders a network's registry contents as JSON, for
// the `dump-db` CLI command.
func (s *Store) DumpNetworkJSON(net string) ([]byte, error) {
	scoped, err := s.ForNetwork(net)
	if err != nil {
		return nil, err
	}
	return scoped.(*network).DumpJSON()
}

// Close releases the underlying bbolt file. Idempotent: safe to call
// more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// network is a registry.Store scoped to one bolt bucket.
type network struct {
	db     *bolt.DB
	bucket []byte
	log    *logger.Logger
}

// ownerOrdersWire is the explicit, versioned wire schema for the
// registry's owner->orders mapping (Design Notes: "Replace with an
// explicit schema: arrays of [owner, arrayOfOrders]").
type ownerOrdersWire struct {
	Owner  common.Address `json:"owner"`
	Orders []orderWire    `json:"orders"`
}

type orderWire struct {
	TxHash         common.Hash         `json:"tx"`
	Params         registry.Params     `json:"params"`
	Proof          *registry.Proof     `json:"proof,omitempty"`
	Orders         []orderStatusWire   `json:"orders"`
	SourceContract common.Address      `json:"sourceContract"`
	LastPoll       *registry.LastPoll  `json:"lastPoll,omitempty"`
}

type orderStatusWire struct {
	UID    registry.OrderUID   `json:"uid"`
	Status registry.OrderStatus `json:"status"`
}

// MarshalJSON / UnmarshalJSON for OrderStatus render it as the textual
// enum ("SUBMITTED"/"FILLED") rather than a bare int, so the on-disk
// JSON stays human-legible.
func statusText(s registry.OrderStatus) string { return s.String() }

func statusFromText(s string) registry.OrderStatus {
	if s == "FILLED" {
		return registry.StatusFilled
	}
	return registry.StatusSubmitted
}

func (w orderStatusWire) MarshalJSON() ([]byte, error) {
	type alias struct {
		UID    registry.OrderUID `json:"uid"`
		Status string            `json:"status"`
	}
	return json.Marshal(alias{UID: w.UID, Status: statusText(w.Status)})
}

func (w *orderStatusWire) UnmarshalJSON(data []byte) error {
	var alias struct {
		UID    registry.OrderUID `json:"uid"`
		Status string            `json:"status"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	w.UID = alias.UID
	w.Status = statusFromText(alias.Status)
	return nil
}

func toWire(ownerOrders map[common.Address]map[registry.Key]*registry.ConditionalOrder) []ownerOrdersWire {
	wire := make([]ownerOrdersWire, 0, len(ownerOrders))
	for owner, orders := range ownerOrders {
		entry := ownerOrdersWire{Owner: owner, Orders: make([]orderWire, 0, len(orders))}
		for _, co := range orders {
			ow := orderWire{
				TxHash:         co.TxHash,
				Params:         co.Params,
				Proof:          co.Proof,
				SourceContract: co.SourceContract,
				LastPoll:       co.LastPoll,
				Orders:         make([]orderStatusWire, 0, len(co.Orders)),
			}
			for uid, status := range co.Orders {
				ow.Orders = append(ow.Orders, orderStatusWire{UID: uid, Status: status})
			}
			entry.Orders = append(entry.Orders, ow)
		}
		wire = append(wire, entry)
	}
	return wire
}

func fromWire(wire []ownerOrdersWire) map[common.Address]map[registry.Key]*registry.ConditionalOrder {
	ownerOrders := make(map[common.Address]map[registry.Key]*registry.ConditionalOrder, len(wire))
	for _, entry := range wire {
		orders := make(map[registry.Key]*registry.ConditionalOrder, len(entry.Orders))
		for _, ow := range entry.Orders {
			co := registry.NewConditionalOrder(ow.TxHash, ow.Params, ow.Proof, ow.SourceContract)
			co.LastPoll = ow.LastPoll
			for _, os := range ow.Orders {
				co.Orders[os.UID] = os.Status
			}
			orders[ow.Params.Key()] = co
		}
		ownerOrders[entry.Owner] = orders
	}
	return ownerOrders
}

// SaveBatch persists version, the owner/orders mapping, the processed
// cursor and the last-notified-error timestamp as one bbolt
// transaction, which commits all-or-nothing: a partial write is never
// observable.
func (n *network) SaveBatch(
	version uint32,
	ownerOrders map[common.Address]map[registry.Key]*registry.ConditionalOrder,
	lastProcessed *registry.Block,
	lastNotifiedError *time.Time,
) error {
	registryJSON, err := json.Marshal(toWire(ownerOrders))
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	var blockJSON []byte
	if lastProcessed != nil {
		if blockJSON, err = json.Marshal(lastProcessed); err != nil {
			return fmt.Errorf("marshal last processed block: %w", err)
		}
	}

	return n.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.bucket)
		if err := b.Put([]byte(keyVersion), []byte(fmt.Sprintf("%d", version))); err != nil {
			return err
		}
		if err := b.Put([]byte(keyRegistry), registryJSON); err != nil {
			return err
		}
		if blockJSON != nil {
			if err := b.Put([]byte(keyLastProcessedBlk), blockJSON); err != nil {
				return err
			}
		} else if err := b.Delete([]byte(keyLastProcessedBlk)); err != nil {
			return err
		}

		if lastNotifiedError != nil {
			if err := b.Put([]byte(keyLastNotifiedError), []byte(lastNotifiedError.UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		} else if err := b.Delete([]byte(keyLastNotifiedError)); err != nil {
			return err
		}
		return nil
	})
}

// Load reads the four recognised keys, tolerating all of them being
// absent by treating missing keys as defaults.
func (n *network) Load() (uint32, map[common.Address]map[registry.Key]*registry.ConditionalOrder, *registry.Block, *time.Time, error) {
	var (
		version           uint32
		ownerOrders       map[common.Address]map[registry.Key]*registry.ConditionalOrder
		lastProcessed     *registry.Block
		lastNotifiedError *time.Time
	)

	err := n.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(n.bucket)
		if b == nil {
			return nil
		}

		if raw := b.Get([]byte(keyVersion)); raw != nil {
			if _, err := fmt.Sscanf(string(raw), "%d", &version); err != nil {
				return fmt.Errorf("parse registry version: %w", err)
			}
		}

		if raw := b.Get([]byte(keyRegistry)); raw != nil {
			var wire []ownerOrdersWire
			if err := json.Unmarshal(raw, &wire); err != nil {
				return fmt.Errorf("unmarshal registry: %w", err)
			}
			ownerOrders = fromWire(wire)
		}

		if raw := b.Get([]byte(keyLastProcessedBlk)); raw != nil {
			var block registry.Block
			if err := json.Unmarshal(raw, &block); err != nil {
				return fmt.Errorf("unmarshal last processed block: %w", err)
			}
			lastProcessed = &block
		}

		if raw := b.Get([]byte(keyLastNotifiedError)); raw != nil {
			t, err := time.Parse(time.RFC3339, string(raw))
			if err != nil {
				return fmt.Errorf("parse last notified error timestamp: %w", err)
			}
			lastNotifiedError = &t
		}

		return nil
	})
	if err != nil {
		return 0, nil, nil, nil, err
	}

	if ownerOrders == nil {
		ownerOrders = make(map[common.Address]map[registry.Key]*registry.ConditionalOrder)
	}

	return version, ownerOrders, lastProcessed, lastNotifiedError, nil
}

// DumpJSON renders the current registry contents as JSON, for the
// `dump-db` CLI command.
func (n *network) DumpJSON() ([]byte, error) {
	_, ownerOrders, lastProcessed, _, err := n.Load()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(struct {
		LastProcessedBlock *registry.Block   `json:"lastProcessedBlock"`
		OwnerOrders        []ownerOrdersWire `json:"ownerOrders"`
	}{LastProcessedBlock: lastProcessed, OwnerOrders: toWire(ownerOrders)}, "", "  ")
}
