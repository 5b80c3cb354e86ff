// Package common holds small cross-cutting constants shared by every
// watch-tower component, avoiding import cycles between them.
package common

const (
	ComponentChainWatcher   = "chain-watcher"
	ComponentRegistry       = "registry"
	ComponentRegistryStore  = "registry-store"
	ComponentEventSource    = "event-source"
	ComponentFilterPolicy   = "filter-policy"
	ComponentHandler        = "handler"
	ComponentOrderBook      = "order-book"
	ComponentOrderPoller    = "order-poller"
	ComponentBlockProcessor = "block-processor"
	ComponentHealth         = "health"
	ComponentAPI            = "api"
	ComponentNotifier       = "notifier"
	ComponentMaintenance    = "maintenance"
	ComponentRPC            = "rpc"
)

// AllComponents is the full set of named components. No package reads
// it; component loggers are named with their own string literals.
var AllComponents = map[string]struct{}{
	ComponentChainWatcher:   {},
	ComponentRegistry:       {},
	ComponentRegistryStore:  {},
	ComponentEventSource:    {},
	ComponentFilterPolicy:   {},
	ComponentHandler:        {},
	ComponentOrderBook:      {},
	ComponentOrderPoller:    {},
	ComponentBlockProcessor: {},
	ComponentHealth:         {},
	ComponentAPI:            {},
	ComponentNotifier:       {},
	ComponentMaintenance:    {},
	ComponentRPC:            {},
}
