package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

// ── rule store ───────────────────────────────────────────────────────────────

type fakeRuleStore struct {
	rules []*repository.RoutingRule
	err   error
}

func (f *fakeRuleStore) ListActive(ctx context.Context, tenantID string) ([]*repository.RoutingRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var active []*repository.RoutingRule
	for _, r := range f.rules {
		if r.IsActive && r.TenantID == tenantID {
			active = append(active, r)
		}
	}
	return active, nil
}

// ── step store ───────────────────────────────────────────────────────────────

type fakeStepStore struct {
	mu     sync.Mutex
	steps  map[string][]*repository.ApprovalStep // keyed by document id
	nextID int
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{steps: make(map[string][]*repository.ApprovalStep)}
}

func (f *fakeStepStore) ReplaceForDocument(ctx context.Context, documentID string, steps []*repository.ApprovalStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.steps, documentID)
	for _, s := range steps {
		f.nextID++
		s.ID = fmt.Sprintf("step-%d", f.nextID)
		s.DocumentID = documentID
		f.steps[documentID] = append(f.steps[documentID], s)
	}
	return nil
}

func (f *fakeStepStore) DeleteForDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.steps, documentID)
	return nil
}

func (f *fakeStepStore) GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chain := append([]*repository.ApprovalStep(nil), f.steps[documentID]...)
	sort.Slice(chain, func(i, j int) bool { return chain[i].StepIndex < chain[j].StepIndex })
	return chain, nil
}

func (f *fakeStepStore) GetStep(ctx context.Context, documentID string, stepIndex int) (*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.steps[documentID] {
		if s.StepIndex == stepIndex {
			return s, nil
		}
	}
	return nil, errors.NotFound("approval_step", documentID)
}

func (f *fakeStepStore) GetPendingForUser(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []*repository.ApprovalStep
	for _, chain := range f.steps {
		for _, s := range chain {
			if s.TenantID == tenantID && s.ApproverUserID == userID && s.Status == repository.StepStatusPending {
				pending = append(pending, s)
			}
		}
	}
	return pending, nil
}

func (f *fakeStepStore) UpdateStepAction(ctx context.Context, id, status string, notes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chain := range f.steps {
		for _, s := range chain {
			if s.ID == id {
				if s.Status != repository.StepStatusPending {
					return errors.Conflict("step not found or not in pending status")
				}
				s.Status = status
				s.ActionNotes = notes
				return nil
			}
		}
	}
	return errors.Conflict("step not found or not in pending status")
}

// ── document store ───────────────────────────────────────────────────────────

type fakeDocumentStore struct {
	mu     sync.Mutex
	docs   map[string]*repository.Document
	nextID int
}

func newFakeDocumentStore(docs ...*repository.Document) *fakeDocumentStore {
	f := &fakeDocumentStore{docs: make(map[string]*repository.Document)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocumentStore) Create(ctx context.Context, doc *repository.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doc.ID = fmt.Sprintf("doc-%d", f.nextID)
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocumentStore) GetByID(ctx context.Context, id, tenantID string) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, errors.NotFound("document", id)
	}
	return doc, nil
}

func (f *fakeDocumentStore) ListIDsByStatuses(ctx context.Context, tenantID string, statuses []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eligible := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		eligible[s] = true
	}
	var ids []string
	for id, doc := range f.docs {
		if doc.TenantID == tenantID && eligible[doc.Status] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeDocumentStore) UpdateStatus(ctx context.Context, id, tenantID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	doc.Status = status
	return nil
}

// ── activity store ───────────────────────────────────────────────────────────

type fakeActivityStore struct {
	mu      sync.Mutex
	entries []*repository.ActivityEntry
}

func (f *fakeActivityStore) Append(ctx context.Context, entry *repository.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeActivityStore) GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []*repository.ActivityEntry
	for _, e := range f.entries {
		if e.DocumentID == documentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeActivityStore) typesFor(documentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, e := range f.entries {
		if e.DocumentID == documentID {
			types = append(types, e.ActivityType)
		}
	}
	return types
}

// ── publisher ────────────────────────────────────────────────────────────────

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishRoutingEvent(ctx context.Context, eventType, documentID, tenantID, actorID string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

// ── sequence store ───────────────────────────────────────────────────────────

type fakeSequenceStore struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func newFakeSequenceStore() *fakeSequenceStore {
	return &fakeSequenceStore{counters: make(map[string]int64)}
}

func (f *fakeSequenceStore) NextValue(ctx context.Context, entityType, scopeID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entityType + "|" + scopeID
	f.counters[key]++
	return f.counters[key], nil
}

// ── capex store ──────────────────────────────────────────────────────────────

type fakeCapexStore struct {
	mu     sync.Mutex
	reqs   map[string]*repository.CapexRequest
	nextID int
}

func newFakeCapexStore(reqs ...*repository.CapexRequest) *fakeCapexStore {
	f := &fakeCapexStore{reqs: make(map[string]*repository.CapexRequest)}
	for _, r := range reqs {
		f.reqs[r.ID] = r
	}
	return f
}

func (f *fakeCapexStore) Create(ctx context.Context, req *repository.CapexRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = fmt.Sprintf("capex-%d", f.nextID)
	f.reqs[req.ID] = req
	return nil
}

func (f *fakeCapexStore) GetByID(ctx context.Context, id, tenantID string) (*repository.CapexRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.TenantID != tenantID {
		return nil, errors.NotFound("capex_request", id)
	}
	return req, nil
}

// WithLock serializes mutations under the store mutex, mirroring the
// row-lock semantics of the real repository. On fn error the stored state is
// restored from a copy, like a rolled-back transaction.
func (f *fakeCapexStore) WithLock(ctx context.Context, id, tenantID string, fn func(*repository.CapexRequest) error) (*repository.CapexRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.TenantID != tenantID {
		return nil, errors.NotFound("capex_request", id)
	}

	snapshot := *req
	snapshot.Approvals = append([]repository.CapexApproval(nil), req.Approvals...)

	if err := fn(req); err != nil {
		*req = snapshot
		return nil, err
	}
	return req, nil
}
