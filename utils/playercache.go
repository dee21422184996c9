package utils

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"banward/async"
)

// OnlineResolver is the host game server's live session table, the fast
// path for players that are currently connected.
type OnlineResolver interface {
	OnlineUUID(name string) (uuid.UUID, bool)
	OnlineName(id uuid.UUID) (string, bool)
}

// LedgerResolver resolves a name against the punishment ledger, used when
// neither the host nor the cache knows the player.
type LedgerResolver interface {
	LastKnownUUIDByName(name string) *async.Result[*uuid.UUID]
}

// PlayerCache maps names to UUIDs and back. It is a performance
// optimization, not a correctness boundary: entries are overwritten on the
// next successful resolution and never expire, and a miss falls through to
// the ledger.
type PlayerCache struct {
	mu       sync.RWMutex
	nameToID map[string]uuid.UUID
	idToName map[uuid.UUID]string

	host   OnlineResolver // may be nil when no host is attached
	ledger LedgerResolver
}

// NewPlayerCache builds a cache over the given resolvers. host may be nil.
func NewPlayerCache(host OnlineResolver, ledger LedgerResolver) *PlayerCache {
	return &PlayerCache{
		nameToID: make(map[string]uuid.UUID),
		idToName: make(map[uuid.UUID]string),
		host:     host,
		ledger:   ledger,
	}
}

// Put records a successful resolution, overwriting any previous entry.
func (c *PlayerCache) Put(name string, id uuid.UUID) {
	c.mu.Lock()
	c.nameToID[strings.ToLower(name)] = id
	c.idToName[id] = name
	c.mu.Unlock()
}

// NameOf returns the cached display name for id, preferring the live
// session when the player is online.
func (c *PlayerCache) NameOf(id uuid.UUID) (string, bool) {
	if c.host != nil {
		if name, ok := c.host.OnlineName(id); ok {
			c.Put(name, id)
			return name, true
		}
	}
	c.mu.RLock()
	name, ok := c.idToName[id]
	c.mu.RUnlock()
	return name, ok
}

// Resolve maps a player name to a UUID: online session first, then the
// in-memory cache, then a blocking ledger lookup bounded by timeout.
func (c *PlayerCache) Resolve(name string, timeout time.Duration) (uuid.UUID, bool) {
	if c.host != nil {
		if id, ok := c.host.OnlineUUID(name); ok {
			c.Put(name, id)
			return id, true
		}
	}

	c.mu.RLock()
	id, ok := c.nameToID[strings.ToLower(name)]
	c.mu.RUnlock()
	if ok {
		return id, true
	}

	resolved, err := c.ledger.LastKnownUUIDByName(name).GetTimeout(timeout)
	if err != nil || resolved == nil {
		return uuid.UUID{}, false
	}
	c.Put(name, *resolved)
	return *resolved, true
}
