package archive

import (
	"log/slog"
	"time"

	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
)

// Dependencies are the storage ports the services run on
type Dependencies struct {
	Documents archiveRepo.DocumentRepository
	Controls  archiveRepo.ControlRepository
	Trees     archiveRepo.TreeRepository
	Latest    archiveRepo.LatestRepository
	Events    archiveRepo.EventRepository
	// Jobs persists async republish requests; required in async mode
	Jobs      archiveRepo.JobRepository
	TxManager repositories.TransactionManager
	Locker    repositories.IdentityLocker
}

// Options tunes the write path
type Options struct {
	RepublishMode RepublishMode
	// CloneState is the state of republished collection revisions (default Current)
	CloneState models.State
	// Parallelism bounds roots cloned concurrently within one batch
	Parallelism int
	Worker      WorkerOptions
	Now         func() time.Time
}

// Services bundles every archive service sharing one write path
type Services struct {
	Versions    archiveSvc.VersionResolver
	Identities  archiveSvc.IdentityResolver
	Latest      archiveSvc.LatestMaintainer
	Republisher archiveSvc.Republisher
	Publication archiveSvc.PublicationService
	Ingest      archiveSvc.IngestService
	Query       archiveSvc.QueryService
	Dump        archiveSvc.DumpService

	// Worker is set in async mode; the caller starts and stops it
	Worker *RepublishWorker
}

// NewServices wires the services
func NewServices(deps Dependencies, opts Options, logger *slog.Logger) *Services {
	if opts.RepublishMode == "" {
		opts.RepublishMode = RepublishSync
	}
	if opts.CloneState == "" {
		opts.CloneState = models.StateCurrent
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	versions := NewVersionResolver(deps.Documents)
	latest := NewLatestMaintainer(deps.Documents, deps.Latest, deps.Locker, logger)
	writer := &revisionWriter{
		docRepo:     deps.Documents,
		controlRepo: deps.Controls,
		eventRepo:   deps.Events,
		latest:      latest,
		now:         opts.Now,
		logger:      logger,
	}
	identities := &identityResolver{
		docRepo:     deps.Documents,
		controlRepo: deps.Controls,
		locker:      deps.Locker,
		txManager:   deps.TxManager,
		writer:      writer,
		logger:      logger,
	}
	republisher := &republisher{
		docRepo:    deps.Documents,
		treeRepo:   deps.Trees,
		latestRepo: deps.Latest,
		txManager:  deps.TxManager,
		locker:     deps.Locker,
		versions:   versions,
		identities: identities,
		writer:     writer,
		cloneState: opts.CloneState,
		workers:    opts.Parallelism,
		logger:     logger,
	}

	s := &Services{
		Versions:    versions,
		Identities:  identities,
		Latest:      latest,
		Republisher: republisher,
		Ingest: &ingestService{
			docRepo:    deps.Documents,
			treeRepo:   deps.Trees,
			txManager:  deps.TxManager,
			identities: identities,
			logger:     logger,
		},
		Query: &queryService{
			docRepo:    deps.Documents,
			treeRepo:   deps.Trees,
			latestRepo: deps.Latest,
			logger:     logger,
		},
		Dump: &dumpService{
			docRepo:     deps.Documents,
			controlRepo: deps.Controls,
			treeRepo:    deps.Trees,
			txManager:   deps.TxManager,
			writer:      writer,
			logger:      logger,
		},
	}

	publication := &publicationService{
		docRepo:     deps.Documents,
		latestRepo:  deps.Latest,
		txManager:   deps.TxManager,
		locker:      deps.Locker,
		versions:    versions,
		writer:      writer,
		republisher: republisher,
		mode:        opts.RepublishMode,
		logger:      logger,
	}
	if opts.RepublishMode == RepublishAsync {
		s.Worker = NewRepublishWorker(republisher, deps.Jobs, opts.Worker, logger)
		publication.queue = s.Worker
	}
	s.Publication = publication
	return s
}
