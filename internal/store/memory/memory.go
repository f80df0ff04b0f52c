// Package memory implements store.Store with in-process maps.
//
// It is suitable for tests and single-process development runs. Mutations
// inside RunInTransaction are serialized against all other store access but
// are not rolled back when the transaction function fails; production
// deployments use the postgres store.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// MemoryStore implements store.Store backed by in-process maps.
type MemoryStore struct {
	mu sync.Mutex

	events    map[string]*model.NormalizedEvent
	heads     map[string]*model.EventHead
	rawEvents map[string]*model.RawEvent
	jobs      map[string]*model.Job
	jobSeq    map[string]int // insertion order tie-break for FIFO claims
	nextSeq   int
	prices    []*model.AssetPrice
	summaries map[string]*model.UserSummary
	accounts  map[string]map[string]*model.AccountView // user id -> account id
	timelines map[string][]*model.TimelineEntry
}

// Compile-time check that MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)

// New returns an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]*model.NormalizedEvent),
		heads:     make(map[string]*model.EventHead),
		rawEvents: make(map[string]*model.RawEvent),
		jobs:      make(map[string]*model.Job),
		jobSeq:    make(map[string]int),
		summaries: make(map[string]*model.UserSummary),
		accounts:  make(map[string]map[string]*model.AccountView),
		timelines: make(map[string][]*model.TimelineEntry),
	}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *model.NormalizedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEvent(event)
}

func (s *MemoryStore) createEvent(event *model.NormalizedEvent) error {
	if event.IngestedAt.IsZero() {
		event.IngestedAt = time.Now().UTC()
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*model.NormalizedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEvent(id)
}

func (s *MemoryStore) getEvent(id string) (*model.NormalizedEvent, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (s *MemoryStore) SupersedeEvent(ctx context.Context, id, supersededByID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supersedeEvent(id, supersededByID)
}

func (s *MemoryStore) supersedeEvent(id, supersededByID string) error {
	e, ok := s.events[id]
	if !ok || e.Status != model.EventApplied {
		return store.ErrNotFound
	}
	e.Status = model.EventSuperseded
	e.SupersededByID = supersededByID
	return nil
}

func (s *MemoryStore) SetEventValuation(ctx context.Context, id, fiatCurrency string, fiatAmountMinor int64, state model.ValuationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.FiatCurrency = fiatCurrency
	amount := fiatAmountMinor
	e.FiatAmountMinor = &amount
	e.ValuationState = state
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context) ([]*model.NormalizedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]*model.NormalizedEvent, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, cloneEvent(e))
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CanonicalKey != events[j].CanonicalKey {
			return events[i].CanonicalKey < events[j].CanonicalKey
		}
		return events[i].Version < events[j].Version
	})
	return events, nil
}

func (s *MemoryStore) GetEventHead(ctx context.Context, canonicalKey string) (*model.EventHead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEventHead(canonicalKey)
}

func (s *MemoryStore) getEventHead(canonicalKey string) (*model.EventHead, error) {
	h, ok := s.heads[canonicalKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *h
	return &clone, nil
}

func (s *MemoryStore) UpsertEventHead(ctx context.Context, head *model.EventHead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertEventHead(head)
}

func (s *MemoryStore) upsertEventHead(head *model.EventHead) error {
	head.UpdatedAt = time.Now().UTC()
	clone := *head
	s.heads[head.CanonicalKey] = &clone
	return nil
}

func (s *MemoryStore) ListEventHeads(ctx context.Context) ([]*model.EventHead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heads := make([]*model.EventHead, 0, len(s.heads))
	for _, h := range s.heads {
		clone := *h
		heads = append(heads, &clone)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].CanonicalKey < heads[j].CanonicalKey })
	return heads, nil
}

func (s *MemoryStore) ListLatestAppliedEvents(ctx context.Context, userID string) ([]*model.NormalizedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*model.NormalizedEvent
	for _, h := range s.heads {
		if h.UserID != userID {
			continue
		}
		e, ok := s.events[h.LatestEventID]
		if !ok || e.Status != model.EventApplied {
			continue
		}
		events = append(events, cloneEvent(e))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CanonicalKey < events[j].CanonicalKey })
	return events, nil
}

func (s *MemoryStore) CreateRawEvent(ctx context.Context, raw *model.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw.CreatedAt.IsZero() {
		raw.CreatedAt = time.Now().UTC()
	}
	clone := *raw
	clone.Payload = append([]byte(nil), raw.Payload...)
	s.rawEvents[raw.ID] = &clone
	return nil
}

func (s *MemoryStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rawEvents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *r
	clone.Payload = append([]byte(nil), r.Payload...)
	return &clone, nil
}

func (s *MemoryStore) FindRawEvent(ctx context.Context, source model.Source, userID string, payload []byte) (*model.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.RawEvent
	for _, r := range s.rawEvents {
		if r.Source != source || r.UserID != userID || !bytes.Equal(r.Payload, payload) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	clone := *latest
	clone.Payload = append([]byte(nil), latest.Payload...)
	return &clone, nil
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createJob(job)
}

func (s *MemoryStore) createJob(job *model.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = cloneJob(job)
	s.jobSeq[job.ID] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*model.Job
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		jobs = append(jobs, cloneJob(j))
	}
	s.sortJobsFIFO(jobs)
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) sortJobsFIFO(jobs []*model.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return s.jobSeq[jobs[i].ID] < s.jobSeq[jobs[j].ID]
	})
}

// ClaimJob picks the oldest claimable job and claims it: PENDING with no
// fresh lock, or RUNNING with an expired lock. The whole selection and update
// happens under the store mutex, giving the same exclusivity guarantee as the
// postgres conditional update.
func (s *MemoryStore) ClaimJob(ctx context.Context, lockedBefore time.Time) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobPending:
			if j.LockedAt != nil && !j.LockedAt.Before(lockedBefore) {
				continue
			}
		case model.JobRunning:
			if j.LockedAt == nil || !j.LockedAt.Before(lockedBefore) {
				continue
			}
		default:
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	s.sortJobsFIFO(candidates)

	j := candidates[0]
	now := time.Now().UTC()
	j.Status = model.JobRunning
	j.LockedAt = &now
	j.Attempts++
	return cloneJob(j), nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id string) error {
	return s.transitionJob(id, model.JobDone, "")
}

func (s *MemoryStore) ReleaseJob(ctx context.Context, id, lastError string) error {
	return s.transitionJob(id, model.JobPending, lastError)
}

func (s *MemoryStore) FailJob(ctx context.Context, id, lastError string) error {
	return s.transitionJob(id, model.JobFailed, lastError)
}

func (s *MemoryStore) transitionJob(id string, status model.JobStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = status
	j.LockedAt = nil
	if lastError != "" {
		j.LastError = lastError
	}
	return nil
}

func (s *MemoryStore) ResetFailedJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status != model.JobFailed {
			continue
		}
		j.Status = model.JobPending
		j.Attempts = 0
		j.LockedAt = nil
		j.LastError = ""
		n++
	}
	return n, nil
}

func (s *MemoryStore) UpsertAssetPrice(ctx context.Context, price *model.AssetPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prices {
		if p.AssetSymbol == price.AssetSymbol && p.FiatCurrency == price.FiatCurrency && p.AsOf.Equal(price.AsOf) {
			p.PriceMinor = price.PriceMinor
			return nil
		}
	}
	clone := *price
	s.prices = append(s.prices, &clone)
	return nil
}

func (s *MemoryStore) LatestAssetPrice(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.AssetPrice
	for _, p := range s.prices {
		if p.AssetSymbol != assetSymbol || p.FiatCurrency != fiatCurrency || p.AsOf.After(asOf) {
			continue
		}
		if latest == nil || p.AsOf.After(latest.AsOf) {
			latest = p
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *MemoryStore) UpsertUserSummary(ctx context.Context, summary *model.UserSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.UpdatedAt = time.Now().UTC()
	s.summaries[summary.UserID] = cloneSummary(summary)
	return nil
}

func (s *MemoryStore) GetUserSummary(ctx context.Context, userID string) (*model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSummary(sum), nil
}

func (s *MemoryStore) UpsertAccountView(ctx context.Context, view *model.AccountView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	view.UpdatedAt = time.Now().UTC()
	byAccount, ok := s.accounts[view.UserID]
	if !ok {
		byAccount = make(map[string]*model.AccountView)
		s.accounts[view.UserID] = byAccount
	}
	if existing, ok := byAccount[view.AccountID]; ok {
		view.ID = existing.ID
	}
	byAccount[view.AccountID] = cloneAccountView(view)
	return nil
}

func (s *MemoryStore) ListAccountViews(ctx context.Context, userID string) ([]*model.AccountView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var views []*model.AccountView
	for _, v := range s.accounts[userID] {
		views = append(views, cloneAccountView(v))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].AccountID < views[j].AccountID })
	return views, nil
}

func (s *MemoryStore) ReplaceTimeline(ctx context.Context, userID string, entries []*model.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := make([]*model.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		clone := *e
		replaced = append(replaced, &clone)
	}
	s.timelines[userID] = replaced
	return nil
}

func (s *MemoryStore) ListTimeline(ctx context.Context, userID string, limit int, cursor *store.TimelineCursor) ([]*model.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}

	var entries []*model.TimelineEntry
	for _, e := range s.timelines[userID] {
		if cursor != nil {
			older := e.OccurredAt.Before(cursor.OccurredAt) ||
				(e.OccurredAt.Equal(cursor.OccurredAt) && e.EventID < cursor.EventID)
			if !older {
				continue
			}
		}
		clone := *e
		entries = append(entries, &clone)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].OccurredAt.After(entries[j].OccurredAt)
		}
		return entries[i].EventID > entries[j].EventID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RunInTransaction runs fn against the store itself. Each individual call
// is still serialized by the store mutex, but the memory store offers no
// isolation or rollback; a failing fn leaves earlier mutations in place.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneEvent(e *model.NormalizedEvent) *model.NormalizedEvent {
	clone := *e
	if e.FiatAmountMinor != nil {
		v := *e.FiatAmountMinor
		clone.FiatAmountMinor = &v
	}
	return &clone
}

func cloneJob(j *model.Job) *model.Job {
	clone := *j
	if j.LockedAt != nil {
		t := *j.LockedAt
		clone.LockedAt = &t
	}
	if j.Payload != nil {
		clone.Payload = append([]byte(nil), j.Payload...)
	}
	return &clone
}

func cloneSummary(sum *model.UserSummary) *model.UserSummary {
	clone := *sum
	clone.BalancesByCurrency = make(map[string]int64, len(sum.BalancesByCurrency))
	for k, v := range sum.BalancesByCurrency {
		clone.BalancesByCurrency[k] = v
	}
	clone.AssetPositions = make(map[string]string, len(sum.AssetPositions))
	for k, v := range sum.AssetPositions {
		clone.AssetPositions[k] = v
	}
	return &clone
}

func cloneAccountView(v *model.AccountView) *model.AccountView {
	clone := *v
	clone.BalancesByCurrency = make(map[string]int64, len(v.BalancesByCurrency))
	for k, val := range v.BalancesByCurrency {
		clone.BalancesByCurrency[k] = val
	}
	clone.AssetPositions = make(map[string]string, len(v.AssetPositions))
	for k, val := range v.AssetPositions {
		clone.AssetPositions[k] = val
	}
	return &clone
}
