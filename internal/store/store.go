package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Co-processor
	SaveNCPInfo(info *NCPInfo) error
	GetNCPInfo() (*NCPInfo, error)

	// Network backup
	SaveBackup(b *NetworkBackup) error
	GetBackup() (*NetworkBackup, error)

	// Nodes
	SaveNode(n *Node) error
	GetNode(eui64 string) (*Node, error)
	DeleteNode(eui64 string) error
	ListNodes() ([]*Node, error)

	// UpdateNode atomically reads, modifies, and saves a node in a single
	// transaction. A missing node is created from a zero Node with EUI64 set.
	UpdateNode(eui64 string, fn func(n *Node) error) error

	// Counters
	SaveCounters(c *CountersSnapshot) error
	GetCounters() (*CountersSnapshot, error)

	Close() error
}
