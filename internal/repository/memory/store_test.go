package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModule(identity uuid.UUID, major int) *models.Document {
	return &models.Document{
		Identity: identity,
		Version:  models.Version{Major: major},
		Kind:     models.KindModule,
		State:    models.StateCurrent,
		Title:    "Page",
	}
}

func TestTransactionManager_RollsBack(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	docs := NewDocumentRepository(store)
	trees := NewTreeRepository(store)
	latest := NewLatestRepository(store)
	ctx := context.Background()
	identity := uuid.New()

	boom := errors.New("boom")
	err := tm.ExecTx(ctx, func(txCtx context.Context) error {
		doc := newModule(identity, 1)
		require.NoError(t, docs.Create(txCtx, doc))
		require.NoError(t, trees.InsertNode(txCtx, &models.TreeNode{DocumentID: &doc.ID}))
		require.NoError(t, latest.Put(txCtx, models.PointerFor(doc)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, store.CountDocuments(identity))
	assert.Equal(t, 0, store.PointerCount(identity))
	_, err = docs.GetByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = trees.GetNode(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionManager_NestedJoinsOuter(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	docs := NewDocumentRepository(store)
	identity := uuid.New()

	err := tm.ExecTx(context.Background(), func(txCtx context.Context) error {
		require.NoError(t, tm.ExecTx(txCtx, func(inner context.Context) error {
			return docs.Create(inner, newModule(identity, 1))
		}))
		return errors.New("outer fails")
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.CountDocuments(identity))
}

func TestLatestRepository_PointerVisibleAfterCommit(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	docs := NewDocumentRepository(store)
	latest := NewLatestRepository(store)
	ctx := context.Background()
	identity := uuid.New()

	err := tm.ExecTx(ctx, func(txCtx context.Context) error {
		doc := newModule(identity, 1)
		require.NoError(t, docs.Create(txCtx, doc))
		applied, err := latest.MergeMax(txCtx, models.PointerFor(doc))
		require.NoError(t, err)
		require.True(t, applied)

		own, err := latest.Get(txCtx, identity)
		require.NoError(t, err)
		assert.NotNil(t, own)

		other, err := latest.Get(ctx, identity)
		require.NoError(t, err)
		assert.Nil(t, other)
		return nil
	})
	require.NoError(t, err)

	p, err := latest.Get(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.Version{Major: 1}, p.Version)
}

func TestLatestRepository_MergeMax(t *testing.T) {
	store := NewStore()
	latest := NewLatestRepository(store)
	ctx := context.Background()
	identity := uuid.New()

	newer := &models.LatestPointer{Identity: identity, DocumentID: 2, Version: models.Version{Major: 2}}
	older := &models.LatestPointer{Identity: identity, DocumentID: 1, Version: models.Version{Major: 1}}

	applied, err := latest.MergeMax(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = latest.MergeMax(ctx, older)
	require.NoError(t, err)
	assert.False(t, applied)

	p, err := latest.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.DocumentID)

	require.NoError(t, latest.Delete(ctx, identity))
	assert.Equal(t, 0, store.PointerCount(identity))
}

func TestIdentityLocker_ReentrantWithinTransaction(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	locker := NewIdentityLocker(store)
	identity := uuid.New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tm.ExecTx(context.Background(), func(txCtx context.Context) error {
			return locker.WithLock(txCtx, repositories.ScopeRevision, identity, func(ctx context.Context) error {
				return locker.WithLock(ctx, repositories.ScopeRevision, identity, func(context.Context) error {
					return nil
				})
			})
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entering a held lock deadlocked")
	}
}

func TestIdentityLocker_HeldUntilTransactionEnds(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	locker := NewIdentityLocker(store)
	identity := uuid.New()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tm.ExecTx(context.Background(), func(txCtx context.Context) error {
			err := locker.WithLock(txCtx, repositories.ScopeLatest, identity, func(context.Context) error { return nil })
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, repositories.ScopeLatest, identity, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other scopes are independent
	require.NoError(t, locker.WithLock(context.Background(), repositories.ScopeRevision, identity, func(context.Context) error { return nil }))

	close(release)
	assert.Eventually(t, func() bool {
		return locker.WithLock(context.Background(), repositories.ScopeLatest, identity, func(context.Context) error { return nil }) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestTreeRepository_FindContainingRoots(t *testing.T) {
	store := NewStore()
	docs := NewDocumentRepository(store)
	trees := NewTreeRepository(store)
	latest := NewLatestRepository(store)
	ctx := context.Background()

	page := newModule(uuid.New(), 1)
	require.NoError(t, docs.Create(ctx, page))
	col := &models.Document{Identity: uuid.New(), Version: models.Version{Major: 1, Minor: 1}, Kind: models.KindCollection, State: models.StateCurrent, Title: "Book"}
	require.NoError(t, docs.Create(ctx, col))

	root := &models.TreeNode{DocumentID: &col.ID}
	require.NoError(t, trees.InsertNode(ctx, root))
	require.NoError(t, trees.InsertNode(ctx, &models.TreeNode{ParentID: &root.ID, DocumentID: &page.ID}))

	roots, err := trees.FindContainingRoots(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, roots, "collection without latest pointer")

	require.NoError(t, latest.Put(ctx, models.PointerFor(col)))
	roots, err = trees.FindContainingRoots(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, col.ID, roots[0].ID)

	// a collection never contains itself
	roots, err = trees.FindContainingRoots(ctx, col.ID)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestJobRepository_VisibleAfterCommit(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	jobs := NewJobRepository(store)
	ctx := context.Background()

	err := tm.ExecTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, jobs.Append(txCtx, &models.RepublishJob{OldDocumentID: 1, NewDocumentID: 2}))
		return errors.New("publish failed")
	})
	require.Error(t, err)

	err = tm.ExecTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, jobs.Append(txCtx, &models.RepublishJob{OldDocumentID: 1, NewDocumentID: 3}))

		claimed, err := jobs.Claim(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, claimed, "uncommitted job must not be claimable")
		return nil
	})
	require.NoError(t, err)

	pending, err := jobs.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	claimed, err := jobs.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int64(3), claimed[0].NewDocumentID)
	assert.Equal(t, 1, claimed[0].Attempts)
}

func TestJobRepository_LeaseAndRetry(t *testing.T) {
	store := NewStore()
	repo := NewJobRepository(store).(*JobRepository)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	job := &models.RepublishJob{OldDocumentID: 1, NewDocumentID: 2, Exclude: []uuid.UUID{uuid.New()}}
	require.NoError(t, repo.Append(ctx, job))

	claimed, err := repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.Exclude, claimed[0].Exclude)

	// leased
	claimed, err = repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// an expired lease makes the job due again
	now = now.Add(2 * time.Minute)
	claimed, err = repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)

	require.NoError(t, repo.Retry(ctx, job.ID, 10*time.Second, "connection reset"))
	claimed, err = repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	now = now.Add(11 * time.Second)
	claimed, err = repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "connection reset", claimed[0].LastError)

	require.NoError(t, repo.Finish(ctx, job.ID, ""))
	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	now = now.Add(time.Hour)
	claimed, err = repo.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	assert.ErrorIs(t, repo.Finish(ctx, 99, ""), domain.ErrNotFound)
}
