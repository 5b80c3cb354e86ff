package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

// Store is the narrow persistence contract the Registry writes through.
// registrystore.Store implements it; Registry never depends on the
// concrete embedded-KV engine behind it.
type Store interface {
	SaveBatch(version uint32, ownerOrders map[common.Address]map[Key]*ConditionalOrder, lastProcessed *Block, lastNotifiedError *time.Time) error
	Load() (version uint32, ownerOrders map[common.Address]map[Key]*ConditionalOrder, lastProcessed *Block, lastNotifiedError *time.Time, err error)
}

// Registry is the per-chain in-memory aggregate.
// All mutation happens in-process; Write persists the whole aggregate
// as one atomic batch.
type Registry struct {
	mu sync.Mutex

	version            uint32
	network            string
	ownerOrders        map[common.Address]map[Key]*ConditionalOrder
	lastProcessedBlock *Block
	lastNotifiedError  *time.Time

	store Store
	log   *logger.Logger
}

// New builds an empty registry. Load should be called before using it
// against an existing store, or New followed by Write for a fresh one.
func New(network string, store Store, log *logger.Logger) *Registry {
	return &Registry{
		version:     SchemaVersion,
		network:     network,
		ownerOrders: make(map[common.Address]map[Key]*ConditionalOrder),
		store:       store,
		log:         log.WithComponent("registry").WithChain(network),
	}
}

// Load populates the registry from the store, called once at
// chain-watcher start. A missing version key is treated as an empty
// v1 registry; a version below the current one is fatal until a
// migration step exists for it.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, ownerOrders, lastProcessed, lastNotifiedError, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if version == 0 {
		version = SchemaVersion
		ownerOrders = make(map[common.Address]map[Key]*ConditionalOrder)
	} else if version < SchemaVersion {
		return fmt.Errorf("registry schema v%d predates current v%d and no migration is registered for it", version, SchemaVersion)
	} else if version > SchemaVersion {
		return fmt.Errorf("registry schema v%d is newer than this binary's v%d", version, SchemaVersion)
	}

	r.version = version
	r.ownerOrders = ownerOrders
	r.lastProcessedBlock = lastProcessed
	r.lastNotifiedError = lastNotifiedError

	r.log.Infow("registry loaded", "owners", len(r.ownerOrders), "orders", r.numOrdersLocked())
	return nil
}

// Add inserts a conditional order for owner if its Params aren't
// already present. Returns whether it was actually inserted.
func (r *Registry) Add(owner common.Address, co *ConditionalOrder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, ownerExists := r.ownerOrders[owner]
	if !ownerExists {
		orders = make(map[Key]*ConditionalOrder)
		r.ownerOrders[owner] = orders
	}

	key := co.Params.Key()
	if _, exists := orders[key]; exists {
		r.log.Debugw("add: order already present", "owner", owner, "new_owner", false)
		return false
	}

	orders[key] = co
	r.log.Debugw("add: order inserted", "owner", owner, "new_owner", !ownerExists)
	return true
}

// Flush removes every conditional order for owner whose proof is
// non-nil and whose merkle root differs from newRoot. It is the
// reaction to a MerkleRootSet event.
func (r *Registry) Flush(owner common.Address, newRoot common.Hash) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, exists := r.ownerOrders[owner]
	if !exists {
		return 0
	}

	removed := 0
	for key, co := range orders {
		if co.Proof != nil && co.Proof.MerkleRoot != newRoot {
			delete(orders, key)
			removed++
		}
	}

	if removed > 0 {
		r.log.Infow("flushed stale merkle orders", "owner", owner, "new_root", newRoot, "removed", removed)
	}
	return removed
}

// Delete removes a single conditional order, used by DROP filter
// decisions and DONT_TRY_AGAIN poll results.
func (r *Registry) Delete(owner common.Address, key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, exists := r.ownerOrders[owner]
	if !exists {
		return
	}
	delete(orders, key)
	if len(orders) == 0 {
		delete(r.ownerOrders, owner)
	}
}

// Mutate runs fn against the stored conditional order for (owner, key)
// under the registry lock, the single-writer discipline concurrent
// Order Poller fan-out requires. fn may freely mutate co's Orders map
// and LastPoll.
func (r *Registry) Mutate(owner common.Address, key Key, fn func(co *ConditionalOrder)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, exists := r.ownerOrders[owner]
	if !exists {
		return false
	}
	co, exists := orders[key]
	if !exists {
		return false
	}
	fn(co)
	return true
}

// Owners returns a snapshot of owner addresses currently tracked.
func (r *Registry) Owners() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := make([]common.Address, 0, len(r.ownerOrders))
	for owner := range r.ownerOrders {
		owners = append(owners, owner)
	}
	return owners
}

// OrdersOf returns a snapshot slice of an owner's conditional orders,
// paired with their Key, for the Block Processor to iterate without
// holding the registry lock for the whole poll pass.
func (r *Registry) OrdersOf(owner common.Address) []struct {
	Key Key
	CO  *ConditionalOrder
} {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := r.ownerOrders[owner]
	out := make([]struct {
		Key Key
		CO  *ConditionalOrder
	}, 0, len(orders))
	for key, co := range orders {
		out = append(out, struct {
			Key Key
			CO  *ConditionalOrder
		}{Key: key, CO: co})
	}
	return out
}

// NumOrders returns the total conditional order count across all
// owners.
func (r *Registry) NumOrders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numOrdersLocked()
}

func (r *Registry) numOrdersLocked() int {
	total := 0
	for _, orders := range r.ownerOrders {
		total += len(orders)
	}
	return total
}

// SetLastProcessedBlock records the cursor after a successful
// block-processing step.
func (r *Registry) SetLastProcessedBlock(b Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastProcessedBlock = &b
}

// LastProcessedBlock returns the current cursor, or nil before the
// first successful write.
func (r *Registry) LastProcessedBlock() *Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastProcessedBlock == nil {
		return nil
	}
	b := *r.lastProcessedBlock
	return &b
}

// SetLastNotifiedError records (or clears, with nil) the timestamp of
// the last externally-notified error, so the notifier can rate-limit
// repeat alerts across restarts.
func (r *Registry) SetLastNotifiedError(t *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastNotifiedError = t
}

// Write persists the whole aggregate as a single atomic batch: version,
// ownerOrders, lastProcessedBlock and lastNotifiedError together, or
// none of them.
func (r *Registry) Write() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// ownerOrders is passed by reference to the store; the store must
	// serialize before releasing control back to the registry, since we
	// drop the lock right after this call returns.
	if err := r.store.SaveBatch(r.version, r.ownerOrders, r.lastProcessedBlock, r.lastNotifiedError); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
