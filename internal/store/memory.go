package store

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore is an in-process Store. It backs the tests and local development, and keeps
// the same contract as the hosted backends: conditional creates, atomic batches and
// asynchronous, per-subscriber ordered change delivery.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Fields
	subs        map[*memorySub]struct{}
	now         func() time.Time
	lastStamp   time.Time
	fault       func(op string) error
	logger      *zap.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the clock used for server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = logger }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]Fields),
		subs:        make(map[*memorySub]struct{}),
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault installs a hook consulted before every operation. A non-nil result is returned
// to the caller as ErrStoreUnavailable. Pass nil to clear it.
func (s *MemoryStore) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *MemoryStore) checkFault(op string) error {
	if s.fault == nil {
		return nil
	}
	return apperrors.Unavailable(op, s.fault(op))
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault("get"); err != nil {
		return Document{}, err
	}
	fields, ok := s.collections[collection][id]
	if !ok {
		return Document{}, apperrors.Wrap(apperrors.ErrNotFound, "%s/%s", collection, id)
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault("query"); err != nil {
		return nil, err
	}
	return s.matching(collection, q), nil
}

func (s *MemoryStore) matching(collection string, q Query) []Document {
	docs := make([]Document, 0)
	for id, fields := range s.collections[collection] {
		if Matches(fields, q) {
			docs = append(docs, Document{ID: id, Fields: cloneFields(fields)})
		}
	}
	SortDocuments(docs, q)
	return docs
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, fields Fields) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	err := s.Batch(ctx, []Op{{Kind: OpCreate, Collection: collection, ID: id, Fields: fields}})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.Batch(ctx, []Op{{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}})
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, []Op{{Kind: OpDelete, Collection: collection, ID: id}})
}

type docKey struct {
	collection string
	id         string
}

// Batch validates every op against the current state plus the earlier ops of the batch,
// then applies them all under one lock.
func (s *MemoryStore) Batch(ctx context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault("batch"); err != nil {
		return err
	}

	exists := make(map[docKey]bool)
	present := func(k docKey) bool {
		if v, ok := exists[k]; ok {
			return v
		}
		_, ok := s.collections[k.collection][k.id]
		return ok
	}
	for _, op := range ops {
		if op.ID == "" {
			return apperrors.Wrap(apperrors.ErrValidation, "batch op on %s without id", op.Collection)
		}
		k := docKey{op.Collection, op.ID}
		switch op.Kind {
		case OpCreate:
			if present(k) {
				return apperrors.Wrap(apperrors.ErrAlreadyExists, "%s/%s", op.Collection, op.ID)
			}
			exists[k] = true
		case OpUpdate:
			if !present(k) {
				return apperrors.Wrap(apperrors.ErrNotFound, "%s/%s", op.Collection, op.ID)
			}
		case OpDelete:
			if !present(k) {
				return apperrors.Wrap(apperrors.ErrNotFound, "%s/%s", op.Collection, op.ID)
			}
			exists[k] = false
		}
	}

	stamp := s.stamp()
	pending := make(map[*memorySub][]Change)
	for _, op := range ops {
		coll := s.collections[op.Collection]
		if coll == nil {
			coll = make(map[string]Fields)
			s.collections[op.Collection] = coll
		}
		before, had := coll[op.ID]
		var after Fields
		switch op.Kind {
		case OpCreate:
			after = resolveFields(op.Fields, stamp)
			coll[op.ID] = after
		case OpUpdate:
			after = cloneFields(before)
			for k, v := range resolveFields(op.Fields, stamp) {
				after[k] = v
			}
			coll[op.ID] = after
		case OpDelete:
			delete(coll, op.ID)
		}
		s.collectChanges(pending, op.Collection, op.ID, before, had, after)
	}
	for sub, changes := range pending {
		sub.enqueue(Snapshot{Changes: changes})
	}
	return nil
}

func (s *MemoryStore) collectChanges(pending map[*memorySub][]Change, collection, id string, before Fields, had bool, after Fields) {
	for sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		wasIn := had && Matches(before, sub.query)
		isIn := after != nil && Matches(after, sub.query)
		switch {
		case wasIn && isIn:
			pending[sub] = append(pending[sub], Change{Kind: Modified, Document: Document{ID: id, Fields: cloneFields(after)}})
		case isIn:
			pending[sub] = append(pending[sub], Change{Kind: Added, Document: Document{ID: id, Fields: cloneFields(after)}})
		case wasIn:
			pending[sub] = append(pending[sub], Change{Kind: Removed, Document: Document{ID: id, Fields: cloneFields(before)}})
		}
	}
}

// stamp returns the store clock, never moving backwards.
func (s *MemoryStore) stamp() time.Time {
	t := s.now().UTC()
	if t.Before(s.lastStamp) {
		t = s.lastStamp
	}
	s.lastStamp = t
	return t
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, q Query, fn func(Snapshot)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault("subscribe"); err != nil {
		return nil, err
	}

	sub := &memorySub{
		store:      s,
		collection: collection,
		query:      q,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	initial := s.matching(collection, q)
	changes := make([]Change, 0, len(initial))
	for _, doc := range initial {
		changes = append(changes, Change{Kind: Added, Document: doc})
	}
	sub.enqueue(Snapshot{Initial: true, Changes: changes})
	s.subs[sub] = struct{}{}
	go sub.run(ctx)

	s.logger.Debug("memory subscription opened",
		zap.String("collection", collection),
		zap.Stringer("query", q))
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (s *MemoryStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := make([]*memorySub, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

type memorySub struct {
	store      *MemoryStore
	collection string
	query      Query
	fn         func(Snapshot)

	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *memorySub) enqueue(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySub) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Unsubscribe()
			return
		case <-s.wake:
		}
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, snap := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(snap)
		}
	}
}

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.store.mu.Lock()
		delete(s.store.subs, s)
		s.store.mu.Unlock()
	})
}

func resolveFields(fields Fields, stamp time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = stamp
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneFields(fields Fields) Fields {
	if fields == nil {
		return nil
	}
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		return append([]any(nil), t...)
	default:
		return v
	}
}
