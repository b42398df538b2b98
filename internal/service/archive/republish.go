package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// republisher implements the Republisher interface.
//
// A batch runs in two phases. Discovery walks a worklist of document ids
// upwards through containing latest collections, with a visited set, until no
// new root appears. Cloning then processes the discovered roots in dependency
// order (a root after every affected root it contains), so each root is cloned
// exactly once and already sees the clones of its contained collections.
// Roots of one dependency level are independent and run in parallel; each root
// is cloned in its own transaction under its identity's revision lock.
type republisher struct {
	docRepo    archiveRepo.DocumentRepository
	treeRepo   archiveRepo.TreeRepository
	latestRepo archiveRepo.LatestRepository
	txManager  repositories.TransactionManager
	locker     repositories.IdentityLocker
	versions   archiveSvc.VersionResolver
	identities *identityResolver
	writer     *revisionWriter
	cloneState models.State
	workers    int
	logger     *slog.Logger
}

// plannedRoot is one affected root collection.
type plannedRoot struct {
	doc  *models.Document
	deps []int64 // affected roots contained in this root's tree
}

type republishPlan struct {
	roots   map[int64]*plannedRoot
	order   []int64 // discovery order
	skipped []uuid.UUID
}

func (r *republisher) Republish(ctx context.Context, req *archiveSvc.RepublishRequest) (*models.RepublishResult, error) {
	start := time.Now()
	defer func() { metrics.RepublishDuration.Observe(time.Since(start).Seconds()) }()

	if err := validation.ValidateStruct(req,
		validation.Field(&req.OldDocumentID, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.NewDocumentID, validation.Required, validation.Min(int64(1)),
			validation.NotIn(req.OldDocumentID).Error("must differ from old_document_id")),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	oldDoc, err := r.referenced(ctx, req.OldDocumentID)
	if err != nil {
		return nil, err
	}
	newDoc, err := r.referenced(ctx, req.NewDocumentID)
	if err != nil {
		return nil, err
	}
	if oldDoc.Identity != newDoc.Identity {
		return nil, fmt.Errorf("%w: documents %d and %d are not revisions of one identity",
			domain.ErrValidation, oldDoc.ID, newDoc.ID)
	}

	plan, err := r.discover(ctx, oldDoc.ID, req.Exclude)
	if err != nil {
		return nil, err
	}

	result := models.NewRepublishResult()
	result.IdentityMap[oldDoc.ID] = newDoc.ID
	result.Skipped = append(result.Skipped, plan.skipped...)

	levels, cyclic := plan.levels()
	for _, id := range cyclic {
		root := plan.roots[id].doc
		r.fail(result, root, fmt.Errorf("%w: collection %s", domain.ErrCyclicContainment, root.Ident()))
	}

	failedRoots := make(map[int64]bool)
	for _, level := range levels {
		var mu sync.Mutex
		var g errgroup.Group
		g.SetLimit(r.workers)

		snapshot := make(models.IdentityMap, len(result.IdentityMap))
		for k, v := range result.IdentityMap {
			snapshot[k] = v
		}

		for _, id := range level {
			planned := plan.roots[id]
			mu.Lock()
			dep := firstFailed(planned.deps, failedRoots)
			if dep != 0 {
				failedRoots[id] = true
				r.fail(result, planned.doc, fmt.Errorf("contained collection %d failed to republish", dep))
			}
			mu.Unlock()
			if dep != 0 {
				continue
			}

			g.Go(func() error {
				outcome, err := r.cloneRoot(ctx, planned.doc, snapshot, req)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					failedRoots[id] = true
					r.fail(result, planned.doc, err)
				case outcome == nil:
					metrics.RepublishRoots.WithLabelValues("skipped").Inc()
					result.Skipped = append(result.Skipped, planned.doc.Identity)
				default:
					metrics.RepublishRoots.WithLabelValues("cloned").Inc()
					for from, to := range outcome.mapped {
						result.IdentityMap[from] = to
					}
					result.Roots = append(result.Roots, outcome.root)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Slice(result.Roots, func(i, j int) bool { return result.Roots[i].ID < result.Roots[j].ID })

	r.logger.Info("republish finished",
		"old_document_id", oldDoc.ID,
		"new_document_id", newDoc.ID,
		"cloned", len(result.Roots),
		"skipped", len(result.Skipped),
		"failed", len(result.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, result.Err()
}

// referenced loads a document that a request or tree node points at.
func (r *republisher) referenced(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := r.docRepo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		err = fmt.Errorf("document %d: %w", id, domain.ErrOrphanReference)
		r.logger.Error("orphan reference", "document_id", id)
	}
	return doc, err
}

func (r *republisher) fail(result *models.RepublishResult, root *models.Document, err error) {
	metrics.RepublishRoots.WithLabelValues("failed").Inc()
	result.Failures[root.Identity] = &domain.RootError{RootID: root.ID, Identity: root.Identity, Err: err}

	level := slog.LevelWarn
	if errors.Is(err, domain.ErrOrphanReference) {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "republish root failed",
		"root_id", root.ID,
		"identity", root.Identity,
		"version", root.Version.String(),
		"error", err,
	)
}

func firstFailed(deps []int64, failed map[int64]bool) int64 {
	for _, d := range deps {
		if failed[d] {
			return d
		}
	}
	return 0
}

// discover collects every latest root collection that transitively contains startID.
func (r *republisher) discover(ctx context.Context, startID int64, exclude []uuid.UUID) (*republishPlan, error) {
	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	plan := &republishPlan{roots: make(map[int64]*plannedRoot)}
	ignored := make(map[int64]bool)
	queue := []int64{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		containers, err := r.treeRepo.FindContainingRoots(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("find roots containing %d: %w", current, err)
		}

		for _, c := range containers {
			if ignored[c.ID] {
				continue
			}
			planned, seen := plan.roots[c.ID]
			if !seen {
				skip, err := r.superseded(ctx, c)
				if err != nil {
					return nil, err
				}
				if skip || excluded[c.Identity] {
					ignored[c.ID] = true
					plan.skipped = append(plan.skipped, c.Identity)
					metrics.RepublishRoots.WithLabelValues("skipped").Inc()
					continue
				}
				planned = &plannedRoot{doc: c}
				plan.roots[c.ID] = planned
				plan.order = append(plan.order, c.ID)
				queue = append(queue, c.ID)
			}
			if current != startID && !containsID(planned.deps, current) {
				planned.deps = append(planned.deps, current)
			}
		}
	}
	return plan, nil
}

// superseded reports whether root is no longer the newest revision of its identity.
func (r *republisher) superseded(ctx context.Context, root *models.Document) (bool, error) {
	max, ok, err := r.docRepo.MaxVersion(ctx, root.Identity)
	if err != nil {
		return false, fmt.Errorf("max version of %s: %w", root.Identity, err)
	}
	return ok && root.Version.Less(max), nil
}

// levels orders the plan topologically. Roots left over sit on a containment cycle.
func (p *republishPlan) levels() ([][]int64, []int64) {
	remaining := make(map[int64]int, len(p.roots))
	dependents := make(map[int64][]int64)
	for _, id := range p.order {
		remaining[id] = len(p.roots[id].deps)
		for _, dep := range p.roots[id].deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var levels [][]int64
	var ready []int64
	for _, id := range p.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}
	done := 0
	for len(ready) > 0 {
		levels = append(levels, ready)
		done += len(ready)
		var next []int64
		for _, id := range ready {
			for _, dependent := range dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		ready = next
	}

	var cyclic []int64
	if done < len(p.order) {
		for _, id := range p.order {
			if remaining[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
	}
	return levels, cyclic
}

// cloneOutcome is the result of cloning one root. nil means the root was skipped.
type cloneOutcome struct {
	root   *models.Document
	mapped models.IdentityMap
	nodes  int
}

// cloneRoot creates the minor revision of root and its cloned tree atomically.
func (r *republisher) cloneRoot(ctx context.Context, root *models.Document, idmap models.IdentityMap, req *archiveSvc.RepublishRequest) (*cloneOutcome, error) {
	discovered := root.ID
	var outcome *cloneOutcome
	err := r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return r.locker.WithLock(txCtx, repositories.ScopeRevision, root.Identity, func(txCtx context.Context) error {
			pointer, err := r.latestRepo.Get(txCtx, root.Identity)
			if err != nil {
				return fmt.Errorf("get latest pointer: %w", err)
			}
			if pointer == nil {
				return nil
			}
			if pointer.DocumentID != root.ID {
				// Another republish moved the identity on since discovery. Its
				// revision may still hold the replaced reference.
				if root, err = r.referenced(txCtx, pointer.DocumentID); err != nil {
					return err
				}
			}
			if skip, err := r.superseded(txCtx, root); err != nil || skip {
				return err
			}

			rootNodes, err := r.treeRepo.FindRootNodes(txCtx, root.ID, false)
			if err != nil {
				return fmt.Errorf("find tree root: %w", err)
			}
			if len(rootNodes) == 0 {
				return nil
			}
			if len(rootNodes) > 1 {
				return fmt.Errorf("%w: collection %s has %d root nodes", domain.ErrAmbiguousRoot, root.Ident(), len(rootNodes))
			}
			nodes, err := r.treeRepo.Subtree(txCtx, rootNodes[0].ID)
			if err != nil {
				return fmt.Errorf("load tree: %w", err)
			}
			if !referencesAny(nodes, idmap) {
				return nil
			}

			version, err := r.versions.NextVersion(txCtx, root.Identity, models.KindCollection, archiveSvc.BumpMinor)
			if err != nil {
				return err
			}
			clone := republishedRevision(root, version, r.cloneState, req, r.writer.now())
			if _, err := r.writer.insert(txCtx, clone); err != nil {
				return err
			}

			c := &treeCloner{
				republisher: r,
				idmap:       idmap,
				mapped:      models.IdentityMap{discovered: clone.ID, root.ID: clone.ID},
				scope:       NewTitleScope(),
				docs:        make(map[int64]*models.Document),
			}
			if err := c.clone(txCtx, nodes, clone); err != nil {
				return err
			}

			outcome = &cloneOutcome{root: clone, mapped: c.mapped, nodes: c.created}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		metrics.ClonedNodes.Observe(float64(outcome.nodes))
		r.logger.Info("collection republished",
			"root_id", root.ID,
			"identity", root.Identity,
			"from_version", root.Version.String(),
			"new_document_id", outcome.root.ID,
			"version", outcome.root.Version.String(),
			"nodes", outcome.nodes,
		)
	}
	return outcome, nil
}

// republishedRevision copies the collection's descriptive fields onto the new version.
func republishedRevision(root *models.Document, version models.Version, state models.State, req *archiveSvc.RepublishRequest, now time.Time) *models.Document {
	doc := root.Clone()
	doc.ID = 0
	doc.Version = version
	doc.State = state
	doc.RevisedAt = now.UTC()
	if req.Submitter != "" {
		doc.Submitter = req.Submitter
	}
	if req.SubmitLog != "" {
		doc.SubmitLog = req.SubmitLog
	}
	return doc
}

func referencesAny(nodes []*models.TreeNode, idmap models.IdentityMap) bool {
	for _, n := range nodes {
		if n.DocumentID != nil {
			if _, ok := idmap[*n.DocumentID]; ok {
				return true
			}
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// treeCloner copies one tree under a new root revision.
type treeCloner struct {
	*republisher
	idmap   models.IdentityMap // remaps from the batch so far
	mapped  models.IdentityMap // remaps made by this root
	scope   archiveSvc.TitleScope
	docs    map[int64]*models.Document
	created int
}

type cloneFrame struct {
	node     *models.TreeNode
	parentID *int64
}

// clone walks the original tree depth first with an explicit stack. Original
// nodes are only read; every clone is a new node.
func (c *treeCloner) clone(ctx context.Context, nodes []*models.TreeNode, root *models.Document) error {
	children := make(map[int64][]*models.TreeNode)
	var top *models.TreeNode
	for _, n := range nodes {
		if n.ParentID == nil {
			top = n
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n)
	}
	for _, kids := range children {
		sort.Slice(kids, func(i, j int) bool { return kids[i].ChildOrder < kids[j].ChildOrder })
	}

	stack := []cloneFrame{{node: top}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		docID, err := c.target(ctx, f, root, len(children[f.node.ID]) > 0)
		if err != nil {
			return err
		}

		clone := &models.TreeNode{
			ParentID:   f.parentID,
			DocumentID: docID,
			Title:      f.node.Title,
			ChildOrder: f.node.ChildOrder,
		}
		if err := c.treeRepo.InsertNode(ctx, clone); err != nil {
			return fmt.Errorf("clone tree node %d: %w", f.node.ID, err)
		}
		c.created++

		kids := children[f.node.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, cloneFrame{node: kids[i], parentID: &clone.ID})
		}
	}
	return nil
}

// target decides what a cloned node points at. Subcollections at every depth
// are re-resolved under the new root revision.
func (c *treeCloner) target(ctx context.Context, f cloneFrame, root *models.Document, hasChildren bool) (*int64, error) {
	if f.node.ParentID == nil {
		return &root.ID, nil
	}

	if f.node.DocumentID == nil {
		if f.node.Title == "" || !hasChildren {
			return nil, nil
		}
		sub, err := c.subcollection(ctx, root, f.node.Title)
		if err != nil {
			return nil, err
		}
		return &sub.ID, nil
	}

	orig, err := c.document(ctx, *f.node.DocumentID)
	if err != nil {
		return nil, err
	}
	if orig.Kind == models.KindSubCollection {
		title := f.node.Title
		if title == "" {
			title = orig.Title
		}
		sub, err := c.subcollection(ctx, root, title)
		if err != nil {
			return nil, err
		}
		if sub.ID != orig.ID {
			c.mapped[orig.ID] = sub.ID
		}
		return &sub.ID, nil
	}
	if to, ok := c.idmap[orig.ID]; ok {
		return &to, nil
	}
	id := orig.ID
	return &id, nil
}

func (c *treeCloner) subcollection(ctx context.Context, parent *models.Document, title string) (*models.Document, error) {
	if err := c.scope.Claim(parent.Identity, title); err != nil {
		return nil, err
	}
	return c.identities.resolve(ctx, parent, title)
}

func (c *treeCloner) document(ctx context.Context, id int64) (*models.Document, error) {
	if d, ok := c.docs[id]; ok {
		return d, nil
	}
	d, err := c.referenced(ctx, id)
	if err != nil {
		return nil, err
	}
	c.docs[id] = d
	return d, nil
}
