package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// Catalog is an in-memory outbound.Catalog, used in tests and single-node runs
type Catalog struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]outbound.CatalogEntry
}

// NewCatalog creates a catalog holding entries
func NewCatalog(entries ...outbound.CatalogEntry) *Catalog {
	c := &Catalog{entries: make(map[uuid.UUID]outbound.CatalogEntry)}
	for _, e := range entries {
		c.entries[e.LotID] = e
	}
	return c
}

// LoadCatalog reads a JSON array of catalog entries from path
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var entries []outbound.CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file %s: %w", path, err)
	}
	seen := make(map[uuid.UUID]bool, len(entries))
	for i, e := range entries {
		if e.LotID == uuid.Nil {
			return nil, fmt.Errorf("catalog entry %d has no lot_id", i)
		}
		if seen[e.LotID] {
			return nil, fmt.Errorf("catalog entry %d duplicates lot %s", i, e.LotID)
		}
		if e.BasePrice.IsNegative() {
			return nil, fmt.Errorf("catalog entry %d has a negative base_price", i)
		}
		seen[e.LotID] = true
	}
	return NewCatalog(entries...), nil
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Put adds or replaces a catalog entry
func (c *Catalog) Put(entry outbound.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.LotID] = entry
}

// GetLotCatalogEntry returns the entry for lotID or a not-found error
func (c *Catalog) GetLotCatalogEntry(ctx context.Context, lotID uuid.UUID) (*outbound.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[lotID]
	if !ok {
		return nil, shared.NewNotFound("lot", lotID)
	}
	return &e, nil
}

// EligibilityGate is an in-memory outbound.EligibilityGate keyed by project
type EligibilityGate struct {
	mu       sync.RWMutex
	eligible map[uuid.UUID]map[uuid.UUID]bool
	allowAll bool
}

// NewEligibilityGate returns a gate that admits nobody until Allow is called
func NewEligibilityGate() *EligibilityGate {
	return &EligibilityGate{eligible: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

// NewOpenEligibilityGate returns a gate that admits everyone
func NewOpenEligibilityGate() *EligibilityGate {
	g := NewEligibilityGate()
	g.allowAll = true
	return g
}

// Allow marks a user eligible for a project
func (g *EligibilityGate) Allow(projectID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.eligible[projectID] == nil {
		g.eligible[projectID] = make(map[uuid.UUID]bool)
	}
	g.eligible[projectID][userID] = true
}

// Revoke removes a user's eligibility for a project
func (g *EligibilityGate) Revoke(projectID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.eligible[projectID], userID)
}

// CheckEligibility reports whether userID may bid on projectID's lots
func (g *EligibilityGate) CheckEligibility(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.allowAll {
		return true, nil
	}
	return g.eligible[projectID][userID], nil
}
