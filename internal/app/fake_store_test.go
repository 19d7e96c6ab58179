package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/projection"
	"innovation/engine/internal/store"
)

// fakeStore is an in-memory dataStore. InTx serializes transactions and rolls
// the state back when fn fails. InsertSupport honours the live slot the same
// way the partial unique index does.
type fakeStore struct {
	txMu  sync.Mutex
	state *fakeState

	insertSupportFn     func(store.SupportRecord) (bool, error)
	transitionSupportFn func(store.SupportTransition) error
	listIdleFn          func(after string, limit int)
}

type fakeState struct {
	innovations     map[string]store.Innovation
	assessments     map[string]store.Assessment
	assessmentUnits map[string][]string
	reassessments   []store.ReassessmentRequest
	units           map[string]store.OrganisationUnit
	shares          map[string]map[string]bool
	shareLog        []store.ShareLogEntry
	supports        map[string]store.SupportRecord
	supportUsers    map[string][]string
	history         []store.SupportHistoryEntry
	supportLog      []store.SupportEvent
	signals         []store.ActivitySignal
	reminders       []store.Reminder
	seq             int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: &fakeState{
		innovations:     map[string]store.Innovation{},
		assessments:     map[string]store.Assessment{},
		assessmentUnits: map[string][]string{},
		units:           map[string]store.OrganisationUnit{},
		shares:          map[string]map[string]bool{},
		supports:        map[string]store.SupportRecord{},
		supportUsers:    map[string][]string{},
	}}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		innovations:     make(map[string]store.Innovation, len(s.innovations)),
		assessments:     make(map[string]store.Assessment, len(s.assessments)),
		assessmentUnits: make(map[string][]string, len(s.assessmentUnits)),
		reassessments:   append([]store.ReassessmentRequest(nil), s.reassessments...),
		units:           make(map[string]store.OrganisationUnit, len(s.units)),
		shares:          make(map[string]map[string]bool, len(s.shares)),
		shareLog:        append([]store.ShareLogEntry(nil), s.shareLog...),
		supports:        make(map[string]store.SupportRecord, len(s.supports)),
		supportUsers:    make(map[string][]string, len(s.supportUsers)),
		history:         append([]store.SupportHistoryEntry(nil), s.history...),
		supportLog:      append([]store.SupportEvent(nil), s.supportLog...),
		signals:         append([]store.ActivitySignal(nil), s.signals...),
		reminders:       append([]store.Reminder(nil), s.reminders...),
		seq:             s.seq,
	}
	for k, v := range s.innovations {
		c.innovations[k] = v
	}
	for k, v := range s.assessments {
		c.assessments[k] = v
	}
	for k, v := range s.assessmentUnits {
		c.assessmentUnits[k] = append([]string(nil), v...)
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.shares {
		orgs := make(map[string]bool, len(v))
		for org, ok := range v {
			orgs[org] = ok
		}
		c.shares[k] = orgs
	}
	for k, v := range s.supports {
		c.supports[k] = v
	}
	for k, v := range s.supportUsers {
		c.supportUsers[k] = append([]string(nil), v...)
	}
	return c
}

func (f *fakeStore) InTx(ctx context.Context, fn func(queries) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	snapshot := f.state.clone()
	if err := fn(f); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func missing(action string) error {
	return fmt.Errorf("%s: %w", action, store.ErrNotFound)
}

func stale(action string) error {
	return fmt.Errorf("%s: %w", action, store.ErrConflict)
}

// seeding helpers

func (f *fakeStore) addOrganisationUnit(organisationID, unitID string) {
	f.state.units[unitID] = store.OrganisationUnit{ID: unitID, OrganisationID: organisationID, Name: unitID}
}

func (f *fakeStore) share(innovationID, organisationID string) {
	if f.state.shares[innovationID] == nil {
		f.state.shares[innovationID] = map[string]bool{}
	}
	f.state.shares[innovationID][organisationID] = true
}

func (f *fakeStore) putSupport(record store.SupportRecord) {
	f.state.supports[record.ID] = record
}

// liveSlots counts most-recent live rows per (innovation, unit).
func (f *fakeStore) liveSlots() map[string]int {
	counts := map[string]int{}
	for _, support := range f.state.supports {
		if support.IsLive() {
			counts[support.InnovationID+"/"+support.OrganisationUnitID]++
		}
	}
	return counts
}

// Innovations

func (f *fakeStore) InsertInnovation(_ context.Context, item store.Innovation) error {
	if _, ok := f.state.innovations[item.ID]; ok {
		return stale("insert innovation")
	}
	item.UpdatedByRole = item.CreatedByRole
	f.state.innovations[item.ID] = item
	return nil
}

func (f *fakeStore) GetInnovation(_ context.Context, id string) (store.Innovation, error) {
	item, ok := f.state.innovations[id]
	if !ok {
		return store.Innovation{}, missing("get innovation")
	}
	return item, nil
}

func (f *fakeStore) LockInnovation(ctx context.Context, id string) (store.Innovation, error) {
	return f.GetInnovation(ctx, id)
}

func (f *fakeStore) UpdateInnovationStatus(_ context.Context, id string, from, to lifecycle.InnovationStatus, role string) error {
	item, ok := f.state.innovations[id]
	if !ok || item.Status != from {
		return stale("update innovation status")
	}
	item.Status = to
	item.UpdatedByRole = role
	f.state.innovations[id] = item
	return nil
}

func (f *fakeStore) SetInnovationAssessmentPointers(_ context.Context, id, currentID string, majorID *string, role string) error {
	item, ok := f.state.innovations[id]
	if !ok {
		return stale("set assessment pointers")
	}
	item.CurrentAssessmentID = &currentID
	if majorID != nil {
		major := *majorID
		item.CurrentMajorAssessmentID = &major
	}
	item.UpdatedByRole = role
	f.state.innovations[id] = item
	return nil
}

func (f *fakeStore) ListInnovationIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.state.innovations))
	for id := range f.state.innovations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Assessments

func (f *fakeStore) InsertAssessment(_ context.Context, item store.Assessment) error {
	for _, existing := range f.state.assessments {
		if existing.InnovationID != item.InnovationID {
			continue
		}
		if existing.FinishedAt == nil {
			return stale("insert assessment")
		}
		if existing.MajorVersion == item.MajorVersion && existing.MinorVersion == item.MinorVersion {
			return stale("insert assessment")
		}
	}
	f.state.assessments[item.ID] = item
	return nil
}

func (f *fakeStore) GetAssessment(_ context.Context, id string) (store.Assessment, error) {
	item, ok := f.state.assessments[id]
	if !ok {
		return store.Assessment{}, missing("get assessment")
	}
	return item, nil
}

func (f *fakeStore) GetOpenAssessment(_ context.Context, innovationID string) (*store.Assessment, error) {
	for _, item := range f.state.assessments {
		if item.InnovationID == innovationID && item.FinishedAt == nil {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetLatestAssessment(_ context.Context, innovationID string) (*store.Assessment, error) {
	var latest *store.Assessment
	for _, item := range f.state.assessments {
		if item.InnovationID != innovationID {
			continue
		}
		if latest == nil || item.MajorVersion > latest.MajorVersion ||
			(item.MajorVersion == latest.MajorVersion && item.MinorVersion > latest.MinorVersion) {
			found := item
			latest = &found
		}
	}
	return latest, nil
}

func (f *fakeStore) FinishAssessment(_ context.Context, id string, at time.Time, role string) error {
	item, ok := f.state.assessments[id]
	if !ok || item.FinishedAt != nil {
		return stale("finish assessment")
	}
	item.FinishedAt = &at
	item.UpdatedByRole = role
	f.state.assessments[id] = item
	return nil
}

func (f *fakeStore) ReplaceAssessmentUnits(_ context.Context, id string, unitIDs []string) error {
	f.state.assessmentUnits[id] = append([]string(nil), unitIDs...)
	return nil
}

func (f *fakeStore) ListAssessmentUnits(_ context.Context, id string) ([]string, error) {
	units := append([]string(nil), f.state.assessmentUnits[id]...)
	sort.Strings(units)
	return units, nil
}

func (f *fakeStore) InsertReassessmentRequest(_ context.Context, item store.ReassessmentRequest) error {
	f.state.reassessments = append(f.state.reassessments, item)
	return nil
}

func (f *fakeStore) HasReassessmentRequest(_ context.Context, innovationID, assessmentID string) (bool, error) {
	for _, item := range f.state.reassessments {
		if item.InnovationID == innovationID && item.AssessmentID == assessmentID {
			return true, nil
		}
	}
	return false, nil
}

// Organisation units and shares

func (f *fakeStore) GetOrganisationUnit(_ context.Context, id string) (store.OrganisationUnit, error) {
	unit, ok := f.state.units[id]
	if !ok {
		return store.OrganisationUnit{}, missing("get organisation unit")
	}
	return unit, nil
}

func (f *fakeStore) ListOrganisationUnits(_ context.Context, ids []string) ([]store.OrganisationUnit, error) {
	units := make([]store.OrganisationUnit, 0, len(ids))
	for _, id := range ids {
		if unit, ok := f.state.units[id]; ok {
			units = append(units, unit)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

func (f *fakeStore) ListOrganisationUnitIDs(_ context.Context, organisationID string) ([]string, error) {
	ids := make([]string, 0)
	for _, unit := range f.state.units {
		if unit.OrganisationID == organisationID {
			ids = append(ids, unit.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) ListSharedOrganisationIDs(_ context.Context, innovationID string) ([]string, error) {
	ids := make([]string, 0)
	for org := range f.state.shares[innovationID] {
		ids = append(ids, org)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) InsertShare(_ context.Context, innovationID, organisationID, _ string) (bool, error) {
	if f.state.shares[innovationID][organisationID] {
		return false, nil
	}
	f.share(innovationID, organisationID)
	return true, nil
}

func (f *fakeStore) DeleteShare(_ context.Context, innovationID, organisationID string) (bool, error) {
	if !f.state.shares[innovationID][organisationID] {
		return false, nil
	}
	delete(f.state.shares[innovationID], organisationID)
	return true, nil
}

func (f *fakeStore) InsertShareLog(_ context.Context, entry store.ShareLogEntry) error {
	f.state.seq++
	entry.ID = f.state.seq
	f.state.shareLog = append(f.state.shareLog, entry)
	return nil
}

// Supports

func (f *fakeStore) InsertSupport(_ context.Context, item store.SupportRecord) (bool, error) {
	if f.insertSupportFn != nil {
		if inserted, err := f.insertSupportFn(item); err != nil || !inserted {
			return inserted, err
		}
	}
	for _, existing := range f.state.supports {
		if existing.InnovationID == item.InnovationID && existing.OrganisationUnitID == item.OrganisationUnitID && existing.IsLive() {
			return false, nil
		}
	}
	if _, ok := f.state.supports[item.ID]; ok {
		return false, stale("insert support")
	}
	f.state.seq++
	item.IsMostRecent = true
	item.CreatedAt = item.StatusChangedAt.Add(time.Duration(f.state.seq))
	item.UpdatedAt = item.CreatedAt
	f.state.supports[item.ID] = item
	return true, nil
}

func (f *fakeStore) GetSupport(_ context.Context, id string) (store.SupportRecord, error) {
	support, ok := f.state.supports[id]
	if !ok {
		return store.SupportRecord{}, missing("get support")
	}
	return support, nil
}

func (f *fakeStore) selectSupports(keep func(store.SupportRecord) bool) []store.SupportRecord {
	out := make([]store.SupportRecord, 0)
	for _, support := range f.state.supports {
		if keep(support) {
			out = append(out, support)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganisationUnitID != out[j].OrganisationUnitID {
			return out[i].OrganisationUnitID < out[j].OrganisationUnitID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeStore) ListMostRecentSupports(_ context.Context, innovationID string) ([]store.SupportRecord, error) {
	return f.selectSupports(func(s store.SupportRecord) bool {
		return s.InnovationID == innovationID && s.IsMostRecent
	}), nil
}

func (f *fakeStore) ListSupportsForMajor(_ context.Context, innovationID, majorID string) ([]store.SupportRecord, error) {
	return f.selectSupports(func(s store.SupportRecord) bool {
		return s.InnovationID == innovationID && s.MajorAssessmentID == majorID
	}), nil
}

func (f *fakeStore) ListLiveSupportsForUnits(_ context.Context, innovationID string, unitIDs []string) ([]store.SupportRecord, error) {
	wanted := map[string]bool{}
	for _, id := range unitIDs {
		wanted[id] = true
	}
	return f.selectSupports(func(s store.SupportRecord) bool {
		return s.InnovationID == innovationID && wanted[s.OrganisationUnitID] && s.IsLive()
	}), nil
}

func (f *fakeStore) TransitionSupport(_ context.Context, change store.SupportTransition) error {
	if f.transitionSupportFn != nil {
		if err := f.transitionSupportFn(change); err != nil {
			return err
		}
	}
	support, ok := f.state.supports[change.SupportID]
	if !ok || support.Status != change.From || !support.IsMostRecent {
		return stale("transition support")
	}
	support.Status = change.To
	if change.StartedAt != nil {
		support.StartedAt = change.StartedAt
	}
	if change.EngagedAt != nil {
		support.EngagedAt = change.EngagedAt
	}
	support.FinishedAt = change.FinishedAt
	support.CloseReason = change.CloseReason
	support.StatusChangedAt = change.At
	support.UpdatedByRole = change.UpdatedByRole
	support.UpdatedAt = change.At
	f.state.supports[change.SupportID] = support
	return nil
}

func (f *fakeStore) SupersedeSupport(_ context.Context, id string, at time.Time, role string) error {
	support, ok := f.state.supports[id]
	if !ok || !support.IsMostRecent {
		return stale("supersede support")
	}
	support.IsMostRecent = false
	support.UpdatedByRole = role
	support.UpdatedAt = at
	f.state.supports[id] = support
	return nil
}

func (f *fakeStore) ReplaceSupportUsers(_ context.Context, id string, userRoleIDs []string) error {
	f.state.supportUsers[id] = append([]string(nil), userRoleIDs...)
	return nil
}

func (f *fakeStore) ListSupportUsers(_ context.Context, id string) ([]string, error) {
	users := append([]string{}, f.state.supportUsers[id]...)
	sort.Strings(users)
	return users, nil
}

func (f *fakeStore) AppendSupportHistory(_ context.Context, entry store.SupportHistoryEntry) error {
	for i := range f.state.history {
		if f.state.history[i].SupportID == entry.SupportID && f.state.history[i].ValidTo == nil {
			validTo := entry.ValidFrom
			f.state.history[i].ValidTo = &validTo
		}
	}
	f.state.seq++
	entry.ID = f.state.seq
	f.state.history = append(f.state.history, entry)
	return nil
}

func (f *fakeStore) GetSupportHistoryAsOf(_ context.Context, id string, at time.Time) (store.SupportHistoryEntry, error) {
	var found *store.SupportHistoryEntry
	for i := range f.state.history {
		entry := f.state.history[i]
		if entry.SupportID != id || !entry.Interval().Covers(at) {
			continue
		}
		if found == nil || entry.ValidFrom.After(found.ValidFrom) {
			found = &entry
		}
	}
	if found == nil {
		return store.SupportHistoryEntry{}, missing("get support history")
	}
	return *found, nil
}

// Support log

func (f *fakeStore) InsertSupportEvent(_ context.Context, event store.SupportEvent) error {
	f.state.supportLog = append(f.state.supportLog, event)
	return nil
}

func (f *fakeStore) ListSuggestionEvents(_ context.Context, innovationID, majorID string) ([]store.SupportEvent, error) {
	out := make([]store.SupportEvent, 0)
	for _, event := range f.state.supportLog {
		if event.InnovationID != innovationID || deref(event.MajorAssessmentID) != majorID {
			continue
		}
		if event.OrganisationUnitID == nil || !event.Type.IsSuggestion() {
			continue
		}
		out = append(out, event)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) eventsOfType(t lifecycle.EventType) []store.SupportEvent {
	out := make([]store.SupportEvent, 0)
	for _, event := range f.state.supportLog {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

// Activity

func (f *fakeStore) InsertActivitySignal(_ context.Context, signal store.ActivitySignal) error {
	f.state.signals = append(f.state.signals, signal)
	return nil
}

func (f *fakeStore) InsertReminder(_ context.Context, reminder store.Reminder) error {
	f.state.reminders = append(f.state.reminders, reminder)
	return nil
}

func latest(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.After(*current) {
		return &candidate
	}
	return current
}

func (f *fakeStore) ListIdleCandidates(_ context.Context, after string, limit int) ([]store.IdleCandidate, error) {
	if f.listIdleFn != nil {
		f.listIdleFn(after, limit)
	}
	supports := f.selectSupports(func(s store.SupportRecord) bool {
		_, innovationExists := f.state.innovations[s.InnovationID]
		return innovationExists && s.IsMostRecent && s.ID > after &&
			(s.Status == lifecycle.SupportEngaging || s.Status == lifecycle.SupportWaiting)
	})
	sort.Slice(supports, func(i, j int) bool { return supports[i].ID < supports[j].ID })
	if len(supports) > limit {
		supports = supports[:limit]
	}

	out := make([]store.IdleCandidate, 0, len(supports))
	for _, support := range supports {
		statusChanged := support.StatusChangedAt
		candidate := store.IdleCandidate{
			SupportID:            support.ID,
			InnovationID:         support.InnovationID,
			OrganisationUnitID:   support.OrganisationUnitID,
			Status:               support.Status,
			LatestStatusChangeAt: &statusChanged,
		}
		for _, signal := range f.state.signals {
			if signal.InnovationID != support.InnovationID || signal.OrganisationUnitID != support.OrganisationUnitID {
				continue
			}
			switch signal.Kind {
			case lifecycle.ActivityMessage:
				candidate.LatestMessageAt = latest(candidate.LatestMessageAt, signal.OccurredAt)
			case lifecycle.ActivityTask:
				candidate.LatestTaskUpdateAt = latest(candidate.LatestTaskUpdateAt, signal.OccurredAt)
			}
		}
		for _, reminder := range f.state.reminders {
			if reminder.InnovationID == support.InnovationID && reminder.OrganisationUnitID == support.OrganisationUnitID {
				candidate.LastReminderAt = latest(candidate.LastReminderAt, reminder.SentAt)
			}
		}
		out = append(out, candidate)
	}
	return out, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, 0)
	for _, event := range p.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

// fakeProjections is a map-backed ProjectionCache with the same generation
// guard as the redis cache. beforeSet runs ahead of every Set without the lock
// held so a test can interleave a write with an in-flight computation.
type fakeProjections struct {
	mu          sync.Mutex
	entries     map[string]projection.Entry
	generations map[string]int64
	invalidated []string
	beforeSet   func(innovationID string)
}

func newFakeProjections() *fakeProjections {
	return &fakeProjections{
		entries:     map[string]projection.Entry{},
		generations: map[string]int64{},
	}
}

func (p *fakeProjections) Get(_ context.Context, id string) (projection.Lookup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[id]
	return projection.Lookup{Entry: entry, Found: ok, Generation: p.generations[id]}, nil
}

func (p *fakeProjections) Set(_ context.Context, entry projection.Entry, generation int64) (bool, error) {
	if hook := p.beforeSet; hook != nil {
		hook(entry.InnovationID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generations[entry.InnovationID] != generation {
		return false, nil
	}
	p.entries[entry.InnovationID] = entry
	return true, nil
}

func (p *fakeProjections) Invalidate(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
	p.generations[id]++
	p.invalidated = append(p.invalidated, id)
	return nil
}

func (p *fakeProjections) Rebuild(ctx context.Context, ids []string, _ int, compute projection.ComputeFunc) (int, error) {
	written := 0
	for _, id := range ids {
		current, err := p.Get(ctx, id)
		if err != nil {
			return written, err
		}
		entry, err := compute(ctx, id)
		if err != nil {
			return written, err
		}
		stored, err := p.Set(ctx, entry, current.Generation)
		if err != nil {
			return written, err
		}
		if stored {
			written++
		}
	}
	return written, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
