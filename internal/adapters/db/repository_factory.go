package db

import (
	"lot-auction-service/internal/ports/outbound"
)

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetLotRepository returns the lot repository
func (f *RepositoryFactory) GetLotRepository() outbound.LotRepository {
	return NewLotRepository(f.conn)
}

// GetBidRepository returns the bid repository
func (f *RepositoryFactory) GetBidRepository() outbound.BidRepository {
	return NewBidRepository(f.conn)
}

// GetSettlementRepository returns the settlement repository
func (f *RepositoryFactory) GetSettlementRepository() outbound.SettlementRepository {
	return NewSettlementRepository(f.conn)
}

// GetCatalog returns the catalog reader
func (f *RepositoryFactory) GetCatalog() outbound.Catalog {
	return NewCatalogReader(f.conn)
}
