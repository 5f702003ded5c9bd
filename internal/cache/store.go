// Package cache holds the client's optimistic view of try-on records. It
// applies speculative mutations before server confirmation, rolls them back
// verbatim on failure, and reconciles against completion events from the push
// channel. Server truth is the final authority: every mutation marks cached
// collections stale so the next read refetches.
package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proteus/internal/domain"
	"proteus/internal/infra"
	"proteus/internal/tryon"
)

// Store owns the cached record collections, keyed by canonicalized list
// query. Consumers only ever receive copies; the collections themselves are
// mutated exclusively through Store methods.
type Store struct {
	client *tryon.Client
	logger *infra.Logger

	mu          sync.Mutex
	collections map[string]*collection
}

type collection struct {
	query   tryon.ListQuery
	records []domain.TryOn
	stale   bool
}

type snapshot map[string][]domain.TryOn

// New constructs an empty store over the given client.
func New(client *tryon.Client, logger *infra.Logger) *Store {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Store{
		client:      client,
		logger:      logger,
		collections: map[string]*collection{},
	}
}

// List returns the records for the query, fetching from the server when the
// cached collection is missing or stale. The returned slice is a copy.
func (s *Store) List(ctx context.Context, query tryon.ListQuery) ([]domain.TryOn, error) {
	key := query.Key()

	s.mu.Lock()
	if col, ok := s.collections[key]; ok && !col.stale {
		records := copyRecords(col.records)
		s.mu.Unlock()
		return records, nil
	}
	s.mu.Unlock()

	fetched, err := s.client.List(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[key]
	if !ok {
		col = &collection{query: query}
		s.collections[key] = col
	}
	// The server does not know about client-side failure flags, and a fetch
	// racing a completion event can still report the record pending. Output
	// keys are monotonic: once reconciled they are never cleared by a
	// lagging server copy.
	prior := map[string]domain.TryOn{}
	for _, rec := range col.records {
		prior[rec.ID] = rec
	}
	for i := range fetched {
		old, ok := prior[fetched[i].ID]
		if !ok {
			continue
		}
		if fetched[i].OutfitTryOnKey == "" {
			fetched[i].OutfitTryOnKey = old.OutfitTryOnKey
		}
		if fetched[i].CleanedOutfitKey == "" {
			fetched[i].CleanedOutfitKey = old.CleanedOutfitKey
		}
		fetched[i].Failed = old.Failed
		fetched[i].FailureReason = old.FailureReason
		fetched[i].Version = old.Version
	}
	col.records = fetched
	col.stale = false
	return copyRecords(col.records), nil
}

// Cached returns the current cached collection without touching the network,
// along with whether the collection exists at all. The slice is a copy;
// mutating it does not affect the cache.
func (s *Store) Cached(query tryon.ListQuery) ([]domain.TryOn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[query.Key()]
	if !ok {
		return nil, false
	}
	return copyRecords(col.records), true
}

// Create speculatively inserts a pending record into every cached
// collection, then performs the real create. On failure every collection is
// restored and the error wraps ErrMutationFailed. Either way the collections
// are marked stale.
func (s *Store) Create(ctx context.Context, params tryon.CreateParams) (*domain.TryOn, error) {
	now := time.Now()
	temp := domain.TryOn{
		ID:                 "pending-" + uuid.NewString(),
		UserSnapKey:        params.UserSnapKey,
		UncleanedOutfitKey: params.UncleanedOutfitKey,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.mu.Lock()
	snap := s.snapshotLocked()
	for _, col := range s.collections {
		col.records = append(col.records, temp)
	}
	s.mu.Unlock()

	rec, err := s.client.Create(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.restoreLocked(snap)
		s.markStaleLocked()
		return nil, fmt.Errorf("cache: create: %v: %w", err, domain.ErrMutationFailed)
	}
	for _, col := range s.collections {
		for i := range col.records {
			if col.records[i].ID == temp.ID {
				col.records[i] = *rec
			}
		}
	}
	s.markStaleLocked()
	return rec, nil
}

// Update speculatively patches the record in every cached collection, then
// performs the real update, rolling back on failure.
func (s *Store) Update(ctx context.Context, id string, patch tryon.UpdateParams) (*domain.TryOn, error) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	for _, col := range s.collections {
		for i := range col.records {
			if col.records[i].ID == id {
				applyPatch(&col.records[i], patch)
			}
		}
	}
	s.mu.Unlock()

	rec, err := s.client.Update(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.restoreLocked(snap)
		s.markStaleLocked()
		return nil, fmt.Errorf("cache: update %s: %v: %w", id, err, domain.ErrMutationFailed)
	}
	if rec != nil {
		s.mergeServerCopyLocked(id, *rec)
	}
	s.markStaleLocked()
	return rec, nil
}

// Delete speculatively filters the record out of every cached collection,
// then performs the real delete, rolling back on failure.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	snap := s.snapshotLocked()
	for _, col := range s.collections {
		kept := col.records[:0]
		for _, rec := range col.records {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}
		col.records = kept
	}
	s.mu.Unlock()

	err := s.client.Delete(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.restoreLocked(snap)
		s.markStaleLocked()
		return fmt.Errorf("cache: delete %s: %v: %w", id, err, domain.ErrMutationFailed)
	}
	s.markStaleLocked()
	return nil
}

// Insert adds a confirmed record to every cached collection that does not
// already hold it and marks the collections stale. It implements
// tryon.RecordCache for the submission flow.
func (s *Store) Insert(rec domain.TryOn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range s.collections {
		present := false
		for i := range col.records {
			if col.records[i].ID == rec.ID {
				present = true
				break
			}
		}
		if !present {
			col.records = append(col.records, rec)
		}
	}
	s.markStaleLocked()
}

// Reconcile applies a completion event to every cached copy of the record it
// names. Applying the same event twice, or an event for an unknown record,
// changes nothing. Returns whether any cached record changed.
func (s *Store) Reconcile(ev domain.CompletionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, col := range s.collections {
		for i := range col.records {
			if col.records[i].ID != ev.TryOnID {
				continue
			}
			if applyEvent(&col.records[i], ev) {
				col.records[i].Version++
				changed = true
			}
		}
	}
	if changed {
		s.logger.Debug().
			Str("record_id", ev.TryOnID).
			Str("job_type", string(ev.JobType)).
			Str("status", string(ev.Status)).
			Msg("reconciled completion event")
	}
	return changed
}

func applyEvent(rec *domain.TryOn, ev domain.CompletionEvent) bool {
	switch ev.Status {
	case domain.EventDone:
		key := ev.Result()
		if key == "" {
			return false
		}
		switch ev.JobType {
		case domain.JobTypeTailor:
			if rec.CleanedOutfitKey == key {
				return false
			}
			rec.CleanedOutfitKey = key
		default:
			if rec.OutfitTryOnKey == key {
				return false
			}
			rec.OutfitTryOnKey = key
		}
		if !ev.FinishedAt.IsZero() {
			rec.UpdatedAt = ev.FinishedAt
		}
		return true

	case domain.EventFailed:
		if rec.Failed {
			return false
		}
		rec.Failed = true
		rec.FailureReason = ev.Reason()
		if !ev.FinishedAt.IsZero() {
			rec.UpdatedAt = ev.FinishedAt
		}
		return true
	}
	return false
}

func applyPatch(rec *domain.TryOn, patch tryon.UpdateParams) {
	if patch.UserSnapKey != nil {
		rec.UserSnapKey = *patch.UserSnapKey
	}
	if patch.UncleanedOutfitKey != nil {
		rec.UncleanedOutfitKey = *patch.UncleanedOutfitKey
	}
	if patch.CleanedOutfitKey != nil {
		rec.CleanedOutfitKey = *patch.CleanedOutfitKey
	}
	if patch.OutfitTryOnKey != nil {
		rec.OutfitTryOnKey = *patch.OutfitTryOnKey
	}
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{}
	for key, col := range s.collections {
		snap[key] = copyRecords(col.records)
	}
	return snap
}

// restoreLocked puts snapshotted collections back, except for records whose
// version advanced while the request was in flight: a reconciliation that
// landed mid-mutation wins over the stale snapshot.
func (s *Store) restoreLocked(snap snapshot) {
	for key, rows := range snap {
		col, ok := s.collections[key]
		if !ok {
			continue
		}
		live := map[string]domain.TryOn{}
		for _, rec := range col.records {
			live[rec.ID] = rec
		}
		restored := make([]domain.TryOn, 0, len(rows))
		for _, rec := range rows {
			if cur, ok := live[rec.ID]; ok && cur.Version > rec.Version {
				restored = append(restored, cur)
			} else {
				restored = append(restored, rec)
			}
		}
		col.records = restored
	}
}

// mergeServerCopyLocked replaces cached copies with the server's, keeping
// client-side fields and any output key the server copy does not report yet.
func (s *Store) mergeServerCopyLocked(id string, server domain.TryOn) {
	for _, col := range s.collections {
		for i := range col.records {
			if col.records[i].ID != id {
				continue
			}
			merged := server
			if merged.OutfitTryOnKey == "" {
				merged.OutfitTryOnKey = col.records[i].OutfitTryOnKey
			}
			if merged.CleanedOutfitKey == "" {
				merged.CleanedOutfitKey = col.records[i].CleanedOutfitKey
			}
			merged.Failed = col.records[i].Failed
			merged.FailureReason = col.records[i].FailureReason
			merged.Version = col.records[i].Version
			col.records[i] = merged
		}
	}
}

func (s *Store) markStaleLocked() {
	for _, col := range s.collections {
		col.stale = true
	}
}

func copyRecords(records []domain.TryOn) []domain.TryOn {
	return append([]domain.TryOn(nil), records...)
}
