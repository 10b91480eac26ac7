package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickClock() *tickClock {
	return &tickClock{t: time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// recorder collects snapshots delivered to a subscription.
type recorder struct {
	ch chan Snapshot
}

func newRecorder() *recorder { return &recorder{ch: make(chan Snapshot, 64)} }

func (r *recorder) fn(s Snapshot) { r.ch <- s }

func (r *recorder) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.ch:
		t.Fatalf("unexpected snapshot: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStoreConditionalCreate(t *testing.T) {
	ctx := context.Background()
	clock := newTickClock()
	s := NewMemoryStore(WithClock(clock.Now))
	defer s.Close()

	id, err := s.Create(ctx, CollectionUsernames, "alice", Fields{"identityId": "u1", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = s.Create(ctx, CollectionUsernames, "alice", Fields{"identityId": "u2"})
	require.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	doc, err := s.Get(ctx, CollectionUsernames, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.Fields["identityId"])
	assert.IsType(t, time.Time{}, doc.Fields["createdAt"])
}

func TestMemoryStoreAutoIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	a, err := s.Create(ctx, CollectionSignals, "", Fields{"message": "hi"})
	require.NoError(t, err)
	b, err := s.Create(ctx, CollectionSignals, "", Fields{"message": "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestMemoryStoreMissingDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(ctx, CollectionProfiles, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, CollectionProfiles, "nobody", Fields{"x": "y"}), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, CollectionProfiles, "nobody"), apperrors.ErrNotFound)
}

func TestMemoryStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Create(ctx, CollectionUsernames, "taken", Fields{"identityId": "u1"})
	require.NoError(t, err)

	err = s.Batch(ctx, []Op{
		{Kind: OpCreate, Collection: CollectionProfiles, ID: "u2", Fields: Fields{"username": "taken"}},
		{Kind: OpCreate, Collection: CollectionUsernames, ID: "taken", Fields: Fields{"identityId": "u2"}},
	})
	require.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = s.Get(ctx, CollectionProfiles, "u2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "no partial write may survive a failed batch")
}

func TestMemoryStoreBatchSeesEarlierOps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Batch(ctx, []Op{
		{Kind: OpCreate, Collection: CollectionContacts, ID: "a_b", Fields: Fields{"status": "pending"}},
		{Kind: OpUpdate, Collection: CollectionContacts, ID: "a_b", Fields: Fields{"status": "accepted"}},
	}))
	doc, err := s.Get(ctx, CollectionContacts, "a_b")
	require.NoError(t, err)
	assert.Equal(t, "accepted", doc.Fields["status"])

	err = s.Batch(ctx, []Op{
		{Kind: OpCreate, Collection: CollectionContacts, ID: "c_d", Fields: Fields{}},
		{Kind: OpCreate, Collection: CollectionContacts, ID: "c_d", Fields: Fields{}},
	})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	clock := newTickClock()
	s := NewMemoryStore(WithClock(clock.Now))
	defer s.Close()

	for _, f := range []Fields{
		{"senderId": "a", "recipientId": "b", "timestamp": ServerTimestamp},
		{"senderId": "a", "recipientId": "c", "timestamp": ServerTimestamp},
		{"senderId": "b", "recipientId": "a", "timestamp": ServerTimestamp},
	} {
		_, err := s.Create(ctx, CollectionSignals, "", f)
		require.NoError(t, err)
	}

	docs, err := s.Query(ctx, CollectionSignals, Query{}.Where("senderId", "a").Order("timestamp", true))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].Fields["recipientId"], "newest first")
	assert.Equal(t, "b", docs[1].Fields["recipientId"])

	_, err = s.Create(ctx, CollectionContacts, "a_b", Fields{"participants": []string{"a", "b"}})
	require.NoError(t, err)
	docs, err = s.Query(ctx, CollectionContacts, Query{}.WhereContains("participants", "b"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a_b", docs[0].ID)
}

func TestMemoryStoreSubscribeDeliversInitialThenChanges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Create(ctx, CollectionSignals, "s1", Fields{"recipientId": "bob", "message": "one"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CollectionSignals, "other", Fields{"recipientId": "carol"})
	require.NoError(t, err)

	rec := newRecorder()
	sub, err := s.Subscribe(ctx, CollectionSignals, Query{}.Where("recipientId", "bob"), rec.fn)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	initial := rec.next(t)
	assert.True(t, initial.Initial)
	require.Len(t, initial.Changes, 1)
	assert.Equal(t, "s1", initial.Changes[0].Document.ID)

	_, err = s.Create(ctx, CollectionSignals, "s2", Fields{"recipientId": "bob"})
	require.NoError(t, err)
	snap := rec.next(t)
	assert.False(t, snap.Initial)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, Added, snap.Changes[0].Kind)

	require.NoError(t, s.Update(ctx, CollectionSignals, "s2", Fields{"message": "edited"}))
	snap = rec.next(t)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, Modified, snap.Changes[0].Kind)
	assert.Equal(t, "edited", snap.Changes[0].Document.Fields["message"])

	// Moving out of the query reads as a removal.
	require.NoError(t, s.Update(ctx, CollectionSignals, "s1", Fields{"recipientId": "carol"}))
	snap = rec.next(t)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, Removed, snap.Changes[0].Kind)
	assert.Equal(t, "s1", snap.Changes[0].Document.ID)

	_, err = s.Create(ctx, CollectionSignals, "", Fields{"recipientId": "dave"})
	require.NoError(t, err)
	rec.none(t)
}

func TestMemoryStoreBatchIsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	rec := newRecorder()
	sub, err := s.Subscribe(ctx, CollectionProfiles, Query{}, rec.fn)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	rec.next(t)

	require.NoError(t, s.Batch(ctx, []Op{
		{Kind: OpCreate, Collection: CollectionProfiles, ID: "u1", Fields: Fields{}},
		{Kind: OpCreate, Collection: CollectionProfiles, ID: "u2", Fields: Fields{}},
		{Kind: OpCreate, Collection: CollectionUsernames, ID: "x", Fields: Fields{}},
	}))
	snap := rec.next(t)
	assert.Len(t, snap.Changes, 2)
	rec.none(t)
}

func TestMemoryStoreUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	rec := newRecorder()
	sub, err := s.Subscribe(ctx, CollectionSignals, Query{}, rec.fn)
	require.NoError(t, err)
	rec.next(t)
	assert.Equal(t, 1, s.Subscribers())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, s.Subscribers())

	_, err = s.Create(ctx, CollectionSignals, "", Fields{})
	require.NoError(t, err)
	rec.none(t)
}

func TestMemoryStoreUnsubscribeFromCallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	calls := make(chan struct{}, 8)
	var (
		mu  sync.Mutex
		sub Subscription
	)
	mu.Lock()
	sub, err := s.Subscribe(ctx, CollectionSignals, Query{}, func(Snapshot) {
		calls <- struct{}{}
		mu.Lock()
		defer mu.Unlock()
		sub.Unsubscribe()
	})
	mu.Unlock()
	require.NoError(t, err)

	<-calls
	_, err = s.Create(ctx, CollectionSignals, "", Fields{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStoreSubscriptionEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore()
	defer s.Close()

	rec := newRecorder()
	_, err := s.Subscribe(ctx, CollectionSignals, Query{}, rec.fn)
	require.NoError(t, err)
	rec.next(t)

	cancel()
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStoreConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	const n = 32
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, CollectionUsernames, "popular", Fields{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	}
	assert.Equal(t, 1, wins)
}

func TestMemoryStoreFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.SetFault(func(op string) error {
		if op == "batch" {
			return errors.New("connection reset")
		}
		return nil
	})
	_, err := s.Create(ctx, CollectionSignals, "", Fields{})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	_, err = s.Query(ctx, CollectionSignals, Query{})
	assert.NoError(t, err)

	s.SetFault(nil)
	_, err = s.Create(ctx, CollectionSignals, "", Fields{})
	assert.NoError(t, err)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Create(ctx, CollectionContacts, "a_b", Fields{"participants": []string{"a", "b"}})
	require.NoError(t, err)

	doc, err := s.Get(ctx, CollectionContacts, "a_b")
	require.NoError(t, err)
	doc.Fields["participants"].([]string)[0] = "mallory"

	doc, err = s.Get(ctx, CollectionContacts, "a_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, doc.Fields["participants"])
}

func TestSortDocumentsPutsMissingFieldLast(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{ID: "none", Fields: Fields{}},
		{ID: "old", Fields: Fields{"timestamp": t0}},
		{ID: "new", Fields: Fields{"timestamp": t0.Add(time.Hour)}},
	}

	SortDocuments(docs, Query{}.Order("timestamp", true))
	assert.Equal(t, []string{"new", "old", "none"}, ids(docs))

	SortDocuments(docs, Query{}.Order("timestamp", false))
	assert.Equal(t, []string{"old", "new", "none"}, ids(docs))
}

func TestMatches(t *testing.T) {
	fields := Fields{"status": "pending", "participants": []any{"a", "b"}}

	assert.True(t, Matches(fields, Query{}.Where("status", "pending")))
	assert.False(t, Matches(fields, Query{}.Where("status", "accepted")))
	assert.True(t, Matches(fields, Query{}.WhereContains("participants", "b")))
	assert.False(t, Matches(fields, Query{}.WhereContains("participants", "c")))
	assert.False(t, Matches(fields, Query{}.Where("missing", "x")))
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
