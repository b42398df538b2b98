// Package memory is an in-process implementation of the archive repositories.
// It backs the service tests and single-node tooling. Transactions roll back
// through an undo journal; identity locks taken inside a transaction are held
// until it ends. Latest pointer writes and republish jobs stay private to their
// transaction until commit, so readers never see a pointer to a revision whose
// tree is still being written, and workers never claim uncommitted jobs.
package memory

import (
	"context"
	"fmt"
	"sync"

	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"

	"github.com/google/uuid"
)

// Store holds every table. Repositories are thin views over one Store.
type Store struct {
	mu sync.RWMutex

	documents  map[int64]*models.Document
	byIdentity map[uuid.UUID][]int64

	controls map[uuid.UUID]*models.DocumentControl
	acl      map[uuid.UUID][]models.ACLEntry

	nodes      map[int64]*models.TreeNode
	children   map[int64][]int64
	byDocument map[int64][]int64

	latest map[uuid.UUID]*models.LatestPointer
	events []*models.PublicationEvent
	jobs   []*models.RepublishJob

	nextDocumentID int64
	nextNodeID     int64
	nextEventID    int64
	nextJobID      int64

	locks *keyLocks
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		documents:  make(map[int64]*models.Document),
		byIdentity: make(map[uuid.UUID][]int64),
		controls:   make(map[uuid.UUID]*models.DocumentControl),
		acl:        make(map[uuid.UUID][]models.ACLEntry),
		nodes:      make(map[int64]*models.TreeNode),
		children:   make(map[int64][]int64),
		byDocument: make(map[int64][]int64),
		latest:     make(map[uuid.UUID]*models.LatestPointer),
		locks:      newKeyLocks(),
	}
}

// PointerCount returns the number of latest-pointer rows for an identity (0 or 1).
func (s *Store) PointerCount(identity uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.latest[identity]; ok {
		return 1
	}
	return 0
}

// CountDocuments returns the number of revisions of an identity.
func (s *Store) CountDocuments(identity uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIdentity[identity])
}

type txContextKey struct{}

// tx is the journal of one memory transaction.
type tx struct {
	mu   sync.Mutex
	undo []func() // run with Store.mu held, in reverse
	held map[lockKey]struct{}
	// pointers buffers latest pointer writes; a nil entry is a delete
	pointers map[uuid.UUID]*models.LatestPointer
	// jobs buffers appended republish jobs
	jobs []*models.RepublishJob
	// release runs when the transaction ends, after commit or rollback
	release []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txContextKey{}).(*tx)
	return t
}

// journal records an undo step when ctx carries a transaction.
// Callers hold s.mu.
func (s *Store) journal(ctx context.Context, undo func()) {
	t := txFrom(ctx)
	if t == nil {
		return
	}
	t.mu.Lock()
	t.undo = append(t.undo, undo)
	t.mu.Unlock()
}

// TransactionManager implements repositories.TransactionManager over a Store
type TransactionManager struct {
	store *Store
}

// NewTransactionManager creates a transaction manager
func NewTransactionManager(store *Store) repositories.TransactionManager {
	return &TransactionManager{store: store}
}

// ExecTx runs fn in a transaction. A nested call joins the outer transaction.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{held: make(map[lockKey]struct{})}
	committed := false
	defer func() {
		if !committed {
			tm.store.rollback(t)
		}
		t.mu.Lock()
		release := t.release
		t.release = nil
		t.mu.Unlock()
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, t)); err != nil {
		return err
	}
	tm.store.commit(t)
	committed = true
	return nil
}

// commit publishes the buffered pointer writes and jobs. Locks are still held.
func (s *Store) commit(t *tx) {
	t.mu.Lock()
	pointers := t.pointers
	jobs := t.jobs
	t.pointers = nil
	t.jobs = nil
	t.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, jobs...)
	for identity, p := range pointers {
		if p == nil {
			delete(s.latest, identity)
			continue
		}
		s.latest[identity] = p
	}
}

func (s *Store) rollback(t *tx) {
	t.mu.Lock()
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// IdentityLocker implements repositories.IdentityLocker over a Store
type IdentityLocker struct {
	store *Store
}

// NewIdentityLocker creates an identity locker
func NewIdentityLocker(store *Store) repositories.IdentityLocker {
	return &IdentityLocker{store: store}
}

// WithLock runs fn holding the (scope, identity) lock. Inside a transaction the
// lock is kept until the transaction ends and re-entry by the same transaction is free.
func (l *IdentityLocker) WithLock(ctx context.Context, scope repositories.LockScope, identity uuid.UUID, fn repositories.TxFn) error {
	key := lockKey{scope: scope, identity: identity}
	locks := l.store.locks

	t := txFrom(ctx)
	if t == nil {
		if err := locks.acquire(ctx, key); err != nil {
			return err
		}
		defer locks.release(key)
		return fn(ctx)
	}

	t.mu.Lock()
	_, held := t.held[key]
	t.mu.Unlock()
	if !held {
		if err := locks.acquire(ctx, key); err != nil {
			return err
		}
		t.mu.Lock()
		t.held[key] = struct{}{}
		t.release = append(t.release, func() { locks.release(key) })
		t.mu.Unlock()
	}
	return fn(ctx)
}

type lockKey struct {
	scope    repositories.LockScope
	identity uuid.UUID
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// keyLocks is a set of mutexes created on demand and dropped when unused.
type keyLocks struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[lockKey]*lockEntry)}
}

func (k *keyLocks) acquire(ctx context.Context, key lockKey) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, e)
		return fmt.Errorf("acquire identity lock %s: %w", key.identity, ctx.Err())
	}
}

func (k *keyLocks) release(key lockKey) {
	k.mu.Lock()
	e := k.entries[key]
	k.mu.Unlock()
	if e == nil {
		return
	}
	<-e.sem
	k.drop(key, e)
}

func (k *keyLocks) drop(key lockKey, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
