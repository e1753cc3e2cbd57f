package auth

import "context"

// OwnershipChecker answers whether userID owns resourceID of resourceType.
type OwnershipChecker interface {
	IsOwner(ctx context.Context, resourceType, resourceID, userID string) (bool, error)
}

// OwnershipFunc adapts a function to OwnershipChecker.
type OwnershipFunc func(ctx context.Context, resourceType, resourceID, userID string) (bool, error)

func (f OwnershipFunc) IsOwner(ctx context.Context, resourceType, resourceID, userID string) (bool, error) {
	return f(ctx, resourceType, resourceID, userID)
}
