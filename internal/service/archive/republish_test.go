package archive

import (
	"context"
	"errors"
	"sync"
	"testing"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// documentIDs lists the documents referenced below the root, depth first.
func documentIDs(view *models.TreeView) []int64 {
	var ids []int64
	var walk func(v *models.TreeView)
	walk = func(v *models.TreeView) {
		for _, c := range v.Children {
			if c.DocumentID != nil {
				ids = append(ids, *c.DocumentID)
			}
			walk(c)
		}
	}
	walk(view)
	return ids
}

func TestRepublish_ModuleRevisionClonesCollection(t *testing.T) {
	env := newTestEnv(t, Options{})

	m1 := env.module(t, nil, "Intro")
	col := env.collection(t, nil, "col1", leaf("Intro", m1.ID))
	require.Equal(t, models.Version{Major: 1, Minor: 1}, col.Version)

	result := env.publish(t, &archiveSvc.PublishRequest{Identity: &m1.Identity, Kind: models.KindModule, Title: "Intro"})
	m2 := result.Document
	require.NotNil(t, result.Republish)
	require.Len(t, result.Republish.Roots, 1)

	clone := result.Republish.Roots[0]
	assert.Equal(t, col.Identity, clone.Identity)
	assert.Equal(t, models.Version{Major: 1, Minor: 2}, clone.Version)
	assert.Equal(t, models.StateCurrent, clone.State)
	assert.Equal(t, col.Title, clone.Title)
	assert.Equal(t, col.License, clone.License)
	assert.Equal(t, models.IdentityMap{m1.ID: m2.ID, col.ID: clone.ID}, result.Republish.IdentityMap)

	p := env.latestOf(t, col.Identity)
	assert.Equal(t, clone.ID, p.DocumentID)
	assert.Equal(t, "1.2", p.Version.String())

	view := env.tree(t, clone.ID)
	assert.Equal(t, "col1", view.Title)
	require.Len(t, view.Children, 1)
	assert.Equal(t, "Intro", view.Children[0].Title)
	assert.Equal(t, m2.ID, *view.Children[0].DocumentID)
	assert.Equal(t, "2", view.Children[0].RenderedVersion)

	// the published revision keeps its tree
	old := env.tree(t, col.ID)
	assert.Equal(t, []int64{m1.ID}, documentIDs(old))
}

func TestRepublish_PreservesTreeShape(t *testing.T) {
	env := newTestEnv(t, Options{})

	m1 := env.module(t, nil, "Intro")
	other := env.module(t, nil, "Appendix")
	col := env.collection(t, nil, "Book",
		leaf("Preface", m1.ID),
		models.NodeSpec{Title: "Placeholder"},
		leaf("", other.ID),
	)

	m2 := env.module(t, &m1.Identity, "Intro")
	clone := env.latestOf(t, col.Identity)
	require.NotEqual(t, col.ID, clone.DocumentID)

	view := env.tree(t, clone.DocumentID)
	require.Len(t, view.Children, 3)
	assert.Equal(t, "Preface", view.Children[0].Title)
	assert.Equal(t, m2.ID, *view.Children[0].DocumentID)
	assert.Equal(t, "Placeholder", view.Children[1].Title)
	assert.Nil(t, view.Children[1].DocumentID)
	assert.Equal(t, "Appendix", view.Children[2].Title, "untitled position falls back to the document title")
	assert.Equal(t, other.ID, *view.Children[2].DocumentID)
}

func TestRepublish_ResolvesSubcollectionsAtNewVersion(t *testing.T) {
	env := newTestEnv(t, Options{})

	m1 := env.module(t, nil, "Intro")
	m3 := env.module(t, nil, "Outro")
	col := env.collection(t, nil, "col1",
		group("Unit 1", leaf("Intro", m1.ID)),
		group("Unit 2", group("Part A", leaf("Outro", m3.ID))),
	)
	unit1 := DeriveIdentity(col.Identity, "Unit 1")
	partA := DeriveIdentity(col.Identity, "Part A")

	m2 := env.module(t, &m1.Identity, "Intro")
	p := env.latestOf(t, col.Identity)
	require.Equal(t, "1.2", p.Version.String())

	view := env.tree(t, p.DocumentID)
	require.Len(t, view.Children, 2)

	u1 := view.Children[0]
	assert.Equal(t, unit1, *u1.Identity)
	assert.Equal(t, models.KindSubCollection, u1.Kind)
	assert.Equal(t, "1.2", u1.RenderedVersion)
	require.Len(t, u1.Children, 1)
	assert.Equal(t, m2.ID, *u1.Children[0].DocumentID)

	pa := view.Children[1].Children[0]
	assert.Equal(t, partA, *pa.Identity)
	assert.Equal(t, "1.2", pa.RenderedVersion)
	assert.Equal(t, m3.ID, *pa.Children[0].DocumentID)

	// one revision per collection version
	assert.Equal(t, 2, env.store.CountDocuments(unit1))
	assert.Equal(t, 2, env.store.CountDocuments(partA))
	assert.Equal(t, "1.2", env.latestOf(t, unit1).Version.String())
}

func TestRepublish_NestedCollections(t *testing.T) {
	env := newTestEnv(t, Options{})

	m1 := env.module(t, nil, "Intro")
	a := env.collection(t, nil, "A", leaf("Intro", m1.ID))
	b := env.collection(t, nil, "B", leaf("A", a.ID))

	result := env.publish(t, &archiveSvc.PublishRequest{Identity: &m1.Identity, Kind: models.KindModule, Title: "Intro"})
	require.NotNil(t, result.Republish)
	require.NoError(t, result.Republish.Err())
	require.Len(t, result.Republish.Roots, 2)

	aNew := env.latestOf(t, a.Identity)
	bNew := env.latestOf(t, b.Identity)
	assert.Equal(t, "1.2", aNew.Version.String())
	assert.Equal(t, "1.2", bNew.Version.String())

	assert.Equal(t, []int64{aNew.DocumentID}, documentIDs(env.tree(t, bNew.DocumentID)))
	assert.Equal(t, []int64{result.Document.ID}, documentIDs(env.tree(t, aNew.DocumentID)))
	assert.Equal(t, aNew.DocumentID, result.Republish.IdentityMap[a.ID])
	assert.Equal(t, bNew.DocumentID, result.Republish.IdentityMap[b.ID])
}

func TestRepublish_RootsFailIndependently(t *testing.T) {
	env := newTestEnv(t, Options{RepublishMode: RepublishOff})
	ctx := context.Background()

	m1 := env.module(t, nil, "Intro")
	broken := env.collection(t, nil, "Broken")
	for i := 0; i < 2; i++ {
		root, err := env.svcs.Ingest.InsertTreeNode(ctx, &archiveSvc.InsertNodeRequest{DocumentID: &broken.ID, Title: "Broken"})
		require.NoError(t, err)
		_, err = env.svcs.Ingest.InsertTreeNode(ctx, &archiveSvc.InsertNodeRequest{ParentID: &root.ID, DocumentID: &m1.ID})
		require.NoError(t, err)
	}
	healthy := env.collection(t, nil, "Healthy", leaf("Intro", m1.ID))
	m2 := env.module(t, &m1.Identity, "Intro")

	result, err := env.svcs.Republisher.Republish(ctx, &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: m2.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmbiguousRoot)

	var rootErr *domain.RootError
	require.True(t, errors.As(err, &rootErr))
	assert.Equal(t, broken.Identity, rootErr.Identity)

	require.NotNil(t, result)
	require.Len(t, result.Roots, 1)
	assert.Equal(t, healthy.Identity, result.Roots[0].Identity)
	assert.Contains(t, result.Failures, broken.Identity)
	assert.Equal(t, broken.ID, env.latestOf(t, broken.Identity).DocumentID)
	assert.Equal(t, 1, env.store.CountDocuments(broken.Identity))
}

func TestRepublish_DependentOfFailedRootFails(t *testing.T) {
	env := newTestEnv(t, Options{RepublishMode: RepublishOff})
	ctx := context.Background()

	m1 := env.module(t, nil, "Intro")
	inner := env.collection(t, nil, "Inner")
	for i := 0; i < 2; i++ {
		root, err := env.svcs.Ingest.InsertTreeNode(ctx, &archiveSvc.InsertNodeRequest{DocumentID: &inner.ID})
		require.NoError(t, err)
		_, err = env.svcs.Ingest.InsertTreeNode(ctx, &archiveSvc.InsertNodeRequest{ParentID: &root.ID, DocumentID: &m1.ID})
		require.NoError(t, err)
	}
	outer := env.collection(t, nil, "Outer", leaf("Inner", inner.ID))
	m2 := env.module(t, &m1.Identity, "Intro")

	result, err := env.svcs.Republisher.Republish(ctx, &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: m2.ID})
	require.Error(t, err)
	assert.Empty(t, result.Roots)
	assert.Contains(t, result.Failures, inner.Identity)
	assert.Contains(t, result.Failures, outer.Identity)
	assert.Equal(t, outer.ID, env.latestOf(t, outer.Identity).DocumentID)
}

func TestRepublish_SkipsSupersededAndExcludedRoots(t *testing.T) {
	env := newTestEnv(t, Options{RepublishMode: RepublishOff})
	ctx := context.Background()

	m1 := env.module(t, nil, "Intro")
	stale := env.collection(t, nil, "Stale", leaf("Intro", m1.ID))
	env.publish(t, &archiveSvc.PublishRequest{
		Identity: &stale.Identity,
		Kind:     models.KindCollection,
		Bump:     archiveSvc.BumpMinor,
		Title:    "Stale",
		State:    models.StateProcessing,
	})
	excluded := env.collection(t, nil, "Excluded", leaf("Intro", m1.ID))
	m2 := env.module(t, &m1.Identity, "Intro")

	result, err := env.svcs.Republisher.Republish(ctx, &archiveSvc.RepublishRequest{
		OldDocumentID: m1.ID,
		NewDocumentID: m2.ID,
		Exclude:       []uuid.UUID{excluded.Identity},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Roots)
	assert.ElementsMatch(t, []uuid.UUID{stale.Identity, excluded.Identity}, result.Skipped)
	assert.Equal(t, stale.ID, env.latestOf(t, stale.Identity).DocumentID)
	assert.Equal(t, excluded.ID, env.latestOf(t, excluded.Identity).DocumentID)
}

func TestRepublish_CyclicContainment(t *testing.T) {
	env := newTestEnv(t, Options{RepublishMode: RepublishOff})
	ctx := context.Background()

	m1 := env.module(t, nil, "Intro")
	a := env.collection(t, nil, "A")
	b := env.collection(t, nil, "B", leaf("A", a.ID))
	_, err := env.svcs.Ingest.BuildTree(ctx, &archiveSvc.BuildTreeRequest{
		CollectionID: a.ID,
		Children:     []models.NodeSpec{leaf("Intro", m1.ID), leaf("B", b.ID)},
	})
	require.NoError(t, err)
	m2 := env.module(t, &m1.Identity, "Intro")

	result, err := env.svcs.Republisher.Republish(ctx, &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: m2.ID})
	assert.ErrorIs(t, err, domain.ErrCyclicContainment)
	assert.Empty(t, result.Roots)
	assert.Len(t, result.Failures, 2)
}

func TestRepublish_Validation(t *testing.T) {
	env := newTestEnv(t, Options{RepublishMode: RepublishOff})
	ctx := context.Background()

	m1 := env.module(t, nil, "Intro")
	other := env.module(t, nil, "Other")

	tests := []struct {
		name    string
		req     *archiveSvc.RepublishRequest
		wantErr error
	}{
		{name: "missing ids", req: &archiveSvc.RepublishRequest{}, wantErr: domain.ErrValidation},
		{name: "same ids", req: &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: m1.ID}, wantErr: domain.ErrValidation},
		{name: "different identities", req: &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: other.ID}, wantErr: domain.ErrValidation},
		{name: "unknown document", req: &archiveSvc.RepublishRequest{OldDocumentID: m1.ID, NewDocumentID: 999}, wantErr: domain.ErrOrphanReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svcs.Republisher.Republish(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRepublish_ConfiguredCloneState(t *testing.T) {
	env := newTestEnv(t, Options{CloneState: models.StateProcessing})

	m1 := env.module(t, nil, "Intro")
	col := env.collection(t, nil, "col1", leaf("Intro", m1.ID))
	result := env.publish(t, &archiveSvc.PublishRequest{Identity: &m1.Identity, Kind: models.KindModule, Title: "Intro"})

	require.Len(t, result.Republish.Roots, 1)
	assert.Equal(t, models.StateProcessing, result.Republish.Roots[0].State)
	// a Processing revision is not eligible, so the pointer stays
	assert.Equal(t, col.ID, env.latestOf(t, col.Identity).DocumentID)
}

func TestRepublish_ConcurrentRevisionsConverge(t *testing.T) {
	env := newTestEnv(t, Options{})

	const modules = 6
	var mods []*models.Document
	var specs []models.NodeSpec
	for i := 0; i < modules; i++ {
		m := env.module(t, nil, "Page")
		mods = append(mods, m)
		specs = append(specs, leaf("", m.ID))
	}
	col := env.collection(t, nil, "Book", specs...)

	revised := make([]int64, modules)
	var wg sync.WaitGroup
	for i, m := range mods {
		wg.Add(1)
		go func(i int, identity uuid.UUID) {
			defer wg.Done()
			result, err := env.svcs.Publication.Publish(context.Background(), &archiveSvc.PublishRequest{
				Identity: &identity,
				Kind:     models.KindModule,
				Title:    "Page",
			})
			if assert.NoError(t, err) {
				revised[i] = result.Document.ID
			}
		}(i, m.Identity)
	}
	wg.Wait()

	p := env.latestOf(t, col.Identity)
	assert.Equal(t, models.Version{Major: 1, Minor: 1 + modules}, p.Version)
	assert.Equal(t, revised, documentIDs(env.tree(t, p.DocumentID)))
}

func TestRepublish_LeavesUnrelatedCollectionsAlone(t *testing.T) {
	env := newTestEnv(t, Options{})

	shared := env.module(t, nil, "Shared")
	other := env.module(t, nil, "Other")
	a := env.collection(t, nil, "A", leaf("", shared.ID))
	b := env.collection(t, nil, "B", group("Unit", leaf("", shared.ID)))
	c := env.collection(t, nil, "C", leaf("", other.ID))
	before := env.latestOf(t, c.Identity)

	result := env.publish(t, &archiveSvc.PublishRequest{Identity: &shared.Identity, Kind: models.KindModule, Title: "Shared"})
	require.NotNil(t, result.Republish)
	require.NoError(t, result.Republish.Err())
	require.Len(t, result.Republish.Roots, 2)

	identities := []uuid.UUID{result.Republish.Roots[0].Identity, result.Republish.Roots[1].Identity}
	assert.ElementsMatch(t, []uuid.UUID{a.Identity, b.Identity}, identities)
	assert.Equal(t, 2, env.store.CountDocuments(a.Identity))
	assert.Equal(t, 2, env.store.CountDocuments(b.Identity))

	assert.Equal(t, 1, env.store.CountDocuments(c.Identity))
	assert.Equal(t, before, env.latestOf(t, c.Identity))
	assert.Equal(t, []int64{other.ID}, documentIDs(env.tree(t, c.ID)))
}

// treeSnapshot copies every node of a collection's tree, root first.
func treeSnapshot(t *testing.T, env *testEnv, collectionID int64) []models.TreeNode {
	t.Helper()
	ctx := context.Background()
	roots, err := env.trees.FindRootNodes(ctx, collectionID, false)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	nodes, err := env.trees.Subtree(ctx, roots[0].ID)
	require.NoError(t, err)

	out := make([]models.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, *n)
	}
	return out
}

func TestRepublish_DoesNotModifyExistingNodes(t *testing.T) {
	env := newTestEnv(t, Options{})

	m1 := env.module(t, nil, "Intro")
	m2 := env.module(t, nil, "Body")
	inner := env.collection(t, nil, "Inner",
		group("Unit 1", leaf("Intro", m1.ID), group("Part A", leaf("", m2.ID))),
		models.NodeSpec{Title: "Placeholder"},
	)
	outer := env.collection(t, nil, "Outer", leaf("", inner.ID), leaf("", m1.ID))

	innerBefore := treeSnapshot(t, env, inner.ID)
	outerBefore := treeSnapshot(t, env, outer.ID)

	result := env.publish(t, &archiveSvc.PublishRequest{Identity: &m1.Identity, Kind: models.KindModule, Title: "Intro"})
	require.NotNil(t, result.Republish)
	require.NoError(t, result.Republish.Err())
	require.Len(t, result.Republish.Roots, 2)

	for name, tc := range map[string]struct {
		collectionID int64
		before       []models.TreeNode
	}{
		"inner": {inner.ID, innerBefore},
		"outer": {outer.ID, outerBefore},
	} {
		t.Run(name, func(t *testing.T) {
			after := treeSnapshot(t, env, tc.collectionID)
			require.Len(t, after, len(tc.before))
			for i, want := range tc.before {
				got := after[i]
				assert.Equal(t, want.ID, got.ID)
				assert.Equal(t, want.Title, got.Title)
				assert.Equal(t, want.ChildOrder, got.ChildOrder)
				assert.Equal(t, want.ParentID, got.ParentID)
				assert.Equal(t, want.DocumentID, got.DocumentID)
				assert.Equal(t, want.Collated, got.Collated)
			}
		})
	}
}
