// Package health implements the Health Aggregator: a roll-up of
// per-chain sync status for the external health endpoint, backed by a
// ChainRegistry instance passed around explicitly rather than a
// process-global, following the IndexerRegistry-passed-to-server
// pattern in pkg/api/server.go.
package health

import (
	"sync"

	"github.com/goran-ethernal/watch-tower/internal/chainwatcher"
	"github.com/goran-ethernal/watch-tower/internal/registry"
)

// ChainStatus is the per-chain payload returned by the health endpoint.
type ChainStatus struct {
	Sync               string  `json:"sync"`
	ChainID            string  `json:"chainId"`
	LastProcessedBlock *uint64 `json:"lastProcessedBlock"`
	IsHealthy          bool    `json:"isHealthy"`
}

// Report is the full payload for GET /health.
type Report struct {
	IsHealthy bool                   `json:"isHealthy"`
	Chains    map[string]ChainStatus `json:"chains"`
}

// chainSource is the narrow view the aggregator needs of a running
// watcher: its state and the cursor from its registry.
type chainSource struct {
	watcher *chainwatcher.Watcher
	reg     *registry.Registry
}

// ChainRegistry holds the set of chains a process is monitoring, so
// the Health Aggregator (and the API server) can be handed one value
// instead of reaching through package-level state.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[string]chainSource
}

// NewChainRegistry returns an empty registry.
func NewChainRegistry() *ChainRegistry {
	return &ChainRegistry{chains: make(map[string]chainSource)}
}

// Register adds a chain under chainID, associating its Watcher and
// Registry for status queries.
func (c *ChainRegistry) Register(chainID string, watcher *chainwatcher.Watcher, reg *registry.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains[chainID] = chainSource{watcher: watcher, reg: reg}
}

// Aggregator computes the Report a ChainRegistry's current state
// implies.
type Aggregator struct {
	registry *ChainRegistry
}

// NewAggregator builds an Aggregator over the given ChainRegistry.
func NewAggregator(registry *ChainRegistry) *Aggregator {
	return &Aggregator{registry: registry}
}

// Report returns the current health of every registered chain. A
// chain is healthy iff its watcher state is IN_SYNC; the overall
// isHealthy is the conjunction across all chains.
func (a *Aggregator) Report() Report {
	a.registry.mu.RLock()
	defer a.registry.mu.RUnlock()

	report := Report{IsHealthy: true, Chains: make(map[string]ChainStatus, len(a.registry.chains))}

	for chainID, src := range a.registry.chains {
		state := src.watcher.State()
		healthy := state == chainwatcher.StateInSync

		var lastBlock *uint64
		if cursor := src.reg.LastProcessedBlock(); cursor != nil {
			n := cursor.Number
			lastBlock = &n
		}

		report.Chains[chainID] = ChainStatus{
			Sync:               state.String(),
			ChainID:            chainID,
			LastProcessedBlock: lastBlock,
			IsHealthy:          healthy,
		}

		if !healthy {
			report.IsHealthy = false
		}
	}

	return report
}
