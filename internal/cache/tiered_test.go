package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/audeo-edu/intelligrade-api/internal/grading"
)

type fakeStore struct {
	entries     map[string]Entry
	fetchCalls  int
	upsertCalls int
	failFetch   bool
	failUpsert  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (f *fakeStore) Fetch(_ context.Context, keys []string) ([]Entry, error) {
	f.fetchCalls++
	if f.failFetch {
		return nil, errors.New("store down")
	}

	found := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := f.entries[key]; ok {
			found = append(found, entry)
		}
	}
	return found, nil
}

func (f *fakeStore) Upsert(_ context.Context, entries []Entry) error {
	f.upsertCalls++
	if f.failUpsert {
		return errors.New("store down")
	}

	for _, entry := range entries {
		f.entries[entry.Key] = entry
	}
	return nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	removed := int64(0)
	for key, entry := range f.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

func testEntry(key string, expiresAt time.Time) Entry {
	return Entry{
		Key:        key,
		QuestionID: "question-" + key,
		Result: grading.Result{
			QuestionID:     "question-" + key,
			IsCorrect:      true,
			PointsEarned:   1,
			PointsPossible: 1,
			Confidence:     0.9,
			Method:         grading.MethodRuleExact,
		},
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
}

func TestTieredGetHitsL1WithoutStore(t *testing.T) {
	store := newFakeStore()
	tiered := NewTiered(store, 10, zerolog.Nop())

	entry := testEntry("k1", time.Now().Add(time.Hour))
	tiered.Put(context.Background(), []Entry{entry})
	require.Equal(t, 1, store.upsertCalls)

	found := tiered.Get(context.Background(), []string{"k1"})
	require.Len(t, found, 1)
	require.True(t, found["k1"].IsCorrect)
	require.Equal(t, 0, store.fetchCalls, "L1 hit must not reach the store")
}

func TestTieredGetFallsThroughToStoreAndBackfills(t *testing.T) {
	store := newFakeStore()
	entry := testEntry("k2", time.Now().Add(time.Hour))
	store.entries["k2"] = entry

	tiered := NewTiered(store, 10, zerolog.Nop())

	found := tiered.Get(context.Background(), []string{"k2"})
	require.Len(t, found, 1)
	require.Equal(t, 1, store.fetchCalls)

	// Second lookup is served from L1.
	found = tiered.Get(context.Background(), []string{"k2"})
	require.Len(t, found, 1)
	require.Equal(t, 1, store.fetchCalls)
}

func TestTieredGetMissingKeysAreAbsent(t *testing.T) {
	tiered := NewTiered(newFakeStore(), 10, zerolog.Nop())

	found := tiered.Get(context.Background(), []string{"absent"})
	require.Empty(t, found)
}

func TestTieredGetSkipsExpiredEntries(t *testing.T) {
	store := newFakeStore()
	tiered := NewTiered(store, 10, zerolog.Nop())

	tiered.Put(context.Background(), []Entry{testEntry("k3", time.Now().Add(-time.Minute))})

	found := tiered.Get(context.Background(), []string{"k3"})
	require.Empty(t, found)
	require.Equal(t, 0, tiered.Len(), "expired entry is removed from L1 on read")
}

func TestTieredStoreFailuresDegradeGracefully(t *testing.T) {
	store := newFakeStore()
	store.failFetch = true
	store.failUpsert = true
	tiered := NewTiered(store, 10, zerolog.Nop())

	tiered.Put(context.Background(), []Entry{testEntry("k4", time.Now().Add(time.Hour))})

	// L1 still works even though the durable tier is down.
	found := tiered.Get(context.Background(), []string{"k4", "k5"})
	require.Len(t, found, 1)
}

func TestTieredEvictsOldestAtCapacity(t *testing.T) {
	tiered := NewTiered(nil, 3, zerolog.Nop())

	for i := 0; i < 5; i++ {
		tiered.Put(context.Background(), []Entry{testEntry(fmt.Sprintf("k%d", i), time.Now().Add(time.Hour))})
	}

	require.Equal(t, 3, tiered.Len())

	found := tiered.Get(context.Background(), []string{"k0", "k1", "k2", "k3", "k4"})
	require.Len(t, found, 3)
	require.NotContains(t, found, "k0")
	require.NotContains(t, found, "k1")
}

func TestTieredPutIsIdempotentOnKey(t *testing.T) {
	tiered := NewTiered(nil, 10, zerolog.Nop())

	entry := testEntry("k6", time.Now().Add(time.Hour))
	tiered.Put(context.Background(), []Entry{entry})

	updated := entry
	updated.Result.Confidence = 0.95
	tiered.Put(context.Background(), []Entry{updated})

	require.Equal(t, 1, tiered.Len())
	found := tiered.Get(context.Background(), []string{"k6"})
	require.Equal(t, 0.95, found["k6"].Confidence)
}

func TestTieredCleanupRemovesExpiredFromBothTiers(t *testing.T) {
	store := newFakeStore()
	tiered := NewTiered(store, 10, zerolog.Nop())

	tiered.Put(context.Background(), []Entry{
		testEntry("live", time.Now().Add(time.Hour)),
		testEntry("dead", time.Now().Add(-time.Hour)),
	})

	tiered.Cleanup(context.Background())

	require.Equal(t, 1, tiered.Len())
	_, ok := store.entries["dead"]
	require.False(t, ok)
	_, ok = store.entries["live"]
	require.True(t, ok)
}

func TestTieredSweeperLifecycle(t *testing.T) {
	tiered := NewTiered(nil, 10, zerolog.Nop())
	tiered.StartSweeper(5 * time.Millisecond)

	tiered.Put(context.Background(), []Entry{testEntry("k7", time.Now().Add(-time.Second))})

	require.Eventually(t, func() bool {
		return tiered.Len() == 0
	}, time.Second, 10*time.Millisecond)

	tiered.Close()
}
