package repositories

import (
	"context"

	"github.com/google/uuid"
)

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions
type TransactionManager interface {
	// ExecTx executes a function within a transaction.
	// Nested calls join the enclosing transaction.
	ExecTx(ctx context.Context, fn TxFn) error
}

// LockScope separates independent families of per-identity locks.
type LockScope int32

const (
	// ScopeRevision serializes revision allocation for one identity
	// (publishing, subcollection resolution, cloning a root collection).
	ScopeRevision LockScope = 1
	// ScopeLatest serializes latest-pointer maintenance for one identity.
	ScopeLatest LockScope = 2
)

// IdentityLocker provides exclusive per-identity scopes. Acquire order is
// always ScopeRevision before ScopeLatest.
type IdentityLocker interface {
	// WithLock runs fn while holding the (scope, identity) lock. When fn runs inside a
	// transaction the lock is held until that transaction ends.
	WithLock(ctx context.Context, scope LockScope, identity uuid.UUID, fn TxFn) error
}
