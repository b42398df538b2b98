package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  *memory.Store
	docs   archiveRepo.DocumentRepository
	trees  archiveRepo.TreeRepository
	latest archiveRepo.LatestRepository
	events archiveRepo.EventRepository
	acl    archiveRepo.ControlRepository
	svcs   *Services
	deps   Dependencies
	logger *slog.Logger
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.NewStore()
	deps := Dependencies{
		Documents: memory.NewDocumentRepository(store),
		Controls:  memory.NewControlRepository(store),
		Trees:     memory.NewTreeRepository(store),
		Latest:    memory.NewLatestRepository(store),
		Events:    memory.NewEventRepository(store),
		Jobs:      memory.NewJobRepository(store),
		TxManager: memory.NewTransactionManager(store),
		Locker:    memory.NewIdentityLocker(store),
	}
	logger := discardLogger()
	return &testEnv{
		store:  store,
		docs:   deps.Documents,
		trees:  deps.Trees,
		latest: deps.Latest,
		events: deps.Events,
		acl:    deps.Controls,
		svcs:   NewServices(deps, opts, logger),
		deps:   deps,
		logger: logger,
	}
}

func (e *testEnv) publish(t *testing.T, req *archiveSvc.PublishRequest) *archiveSvc.PublishResult {
	t.Helper()
	result, err := e.svcs.Publication.Publish(context.Background(), req)
	require.NoError(t, err)
	return result
}

// module publishes the next revision of a module. A nil identity starts a new one.
func (e *testEnv) module(t *testing.T, identity *uuid.UUID, title string) *models.Document {
	t.Helper()
	return e.publish(t, &archiveSvc.PublishRequest{
		Identity:  identity,
		Kind:      models.KindModule,
		Title:     title,
		Submitter: "author",
	}).Document
}

func (e *testEnv) collection(t *testing.T, identity *uuid.UUID, title string, children ...models.NodeSpec) *models.Document {
	t.Helper()
	doc := e.publish(t, &archiveSvc.PublishRequest{
		Identity:  identity,
		Kind:      models.KindCollection,
		Title:     title,
		License:   "CC-BY-4.0",
		Authors:   []string{"editor"},
		Submitter: "editor",
	}).Document
	if len(children) > 0 {
		_, err := e.svcs.Ingest.BuildTree(context.Background(), &archiveSvc.BuildTreeRequest{
			CollectionID: doc.ID,
			Children:     children,
		})
		require.NoError(t, err)
	}
	return doc
}

func (e *testEnv) latestOf(t *testing.T, identity uuid.UUID) *models.LatestPointer {
	t.Helper()
	p, err := e.latest.Get(context.Background(), identity)
	require.NoError(t, err)
	return p
}

func (e *testEnv) tree(t *testing.T, docID int64) *models.TreeView {
	t.Helper()
	view, err := e.svcs.Query.RenderTree(context.Background(), docID)
	require.NoError(t, err)
	return view
}

func leaf(title string, docID int64) models.NodeSpec {
	return models.NodeSpec{Title: title, DocumentID: &docID}
}

func group(title string, children ...models.NodeSpec) models.NodeSpec {
	return models.NodeSpec{Title: title, Children: children}
}

func ptr[T any](v T) *T {
	return &v
}
