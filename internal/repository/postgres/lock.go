package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"archive/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityLocker implements repositories.IdentityLocker with transaction-level
// advisory locks. The two-key form keeps scopes apart: pg_advisory_xact_lock(scope, key).
type IdentityLocker struct {
	pool      *pgxpool.Pool
	txManager repositories.TransactionManager
}

// NewIdentityLocker creates an advisory-lock based locker
func NewIdentityLocker(pool *pgxpool.Pool, txManager repositories.TransactionManager) repositories.IdentityLocker {
	return &IdentityLocker{pool: pool, txManager: txManager}
}

// WithLock takes the lock in the caller's transaction, opening one when ctx has none.
// Postgres releases it at commit or rollback.
func (l *IdentityLocker) WithLock(ctx context.Context, scope repositories.LockScope, identity uuid.UUID, fn repositories.TxFn) error {
	return l.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		executor := GetExecutor(txCtx, l.pool)
		if _, err := executor.Exec(txCtx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(scope), lockKey(identity)); err != nil {
			return fmt.Errorf("acquire identity lock %s: %w", identity, err)
		}
		return fn(txCtx)
	})
}

// lockKey folds an identity into the 32-bit advisory lock key space.
// Collisions only serialize unrelated identities.
func lockKey(identity uuid.UUID) int32 {
	h := fnv.New32a()
	h.Write(identity[:])
	return int32(h.Sum32())
}
