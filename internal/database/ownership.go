package database

import (
	"context"
	"sort"
)

// OwnershipStore answers "does user own resource" from the database. Each
// resource type is a table with an id column and an owner column; only the
// configured tables may be queried.
type OwnershipStore struct {
	m           *Manager
	ownerColumn string
	resources   map[string]bool
}

// NewOwnershipStore returns a store checking ownerColumn on the given tables.
func NewOwnershipStore(m *Manager, ownerColumn string, resources []string) *OwnershipStore {
	set := make(map[string]bool, len(resources))
	for _, r := range resources {
		set[r] = true
	}
	if ownerColumn == "" {
		ownerColumn = "user_id"
	}
	return &OwnershipStore{m: m, ownerColumn: ownerColumn, resources: set}
}

// Resources returns the configured resource types, sorted.
func (s *OwnershipStore) Resources() []string {
	out := make([]string, 0, len(s.resources))
	for r := range s.resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// IsOwner reports whether userID owns the row resourceID of resourceType.
// Unknown resource types are never owned.
func (s *OwnershipStore) IsOwner(ctx context.Context, resourceType, resourceID, userID string) (bool, error) {
	if !s.resources[resourceType] {
		s.m.logger.Warn("ownership check for unconfigured resource", "resource_type", resourceType)
		return false, nil
	}
	row, err := s.m.Table(resourceType).
		Select("id").
		Where("id", "=", resourceID).
		Where(s.ownerColumn, "=", userID).
		First(ctx)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}
