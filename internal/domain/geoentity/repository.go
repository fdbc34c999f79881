package geoentity

import "context"

// EntityRepository reads company rows.
type EntityRepository interface {
	// ListAll returns every company visible to the map, with or without
	// coordinates, in a stable order.
	ListAll(ctx context.Context) ([]Entity, error)
	FindByID(ctx context.Context, id string) (*Entity, error)
}

// ScoreRepository reads the relationship-percentage side table.
type ScoreRepository interface {
	LoadScores(ctx context.Context) (Scores, error)
}

// VersionStore tracks the monotonically increasing company-table version.
type VersionStore interface {
	Current(ctx context.Context) (uint64, error)
	Bump(ctx context.Context) (uint64, error)
}

// SnapshotSource yields the current entity snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

//Personal.AI order the ending
