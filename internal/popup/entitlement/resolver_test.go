package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/logging"
	"github.com/tibco87/clipsmart/internal/popup/models"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

type fakeService struct {
	mu          sync.Mutex
	key         string
	createCalls int
	fetchCalls  int
	fetchErr    error
	// users are returned in order; the last one repeats once drained.
	users []models.UserRecord
}

func (f *fakeService) CreateKey(ctx context.Context, development bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	return f.key, nil
}

func (f *fakeService) FetchUser(ctx context.Context, apiKey string) (*models.UserRecord, json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	u := f.users[0]
	if len(f.users) > 1 {
		f.users = f.users[1:]
	}
	copied := u
	return &copied, nil, nil
}

// countingTier wraps a Tier and counts Set calls, so tests can assert
// idempotence as "no further writes".
type countingTier struct {
	storage.Tier
	mu   sync.Mutex
	sets int
}

func (c *countingTier) Set(ctx context.Context, rec storage.Record) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Tier.Set(ctx, rec)
}

func (c *countingTier) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestResolver(t *testing.T, svc *fakeService, opts Options) (*Resolver, *storage.Store, *countingTier) {
	t.Helper()
	synced := storage.NewMemoryTier()
	local := &countingTier{Tier: storage.NewMemoryTier()}
	store := storage.NewStore(synced, local)
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 5
	}
	return NewResolver(store, svc, testLogger(), opts), store, local
}

func ts(s string) *time.Time {
	t, err := models.ParseInstant(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEnsureInstalled_FirstRunPersistsOnce(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{}
	r, _, _ := newTestResolver(t, svc, Options{Now: func() time.Time { return frozen }})
	ctx := context.Background()

	got, err := r.EnsureInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(frozen))

	// the clock moving on must not move the install time
	r.now = func() time.Time { return frozen.Add(48 * time.Hour) }
	again, err := r.EnsureInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, again.Equal(frozen))
}

func TestEnsureInstalled_MigratesFromLegacyUserRecord(t *testing.T) {
	svc := &fakeService{}
	r, store, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	legacy := models.UserRecord{InstalledAt: ts("2024-01-15T08:30:00.000Z")}
	rec := storage.Record{}
	require.NoError(t, rec.Encode(storage.KeyUser, legacy))
	require.NoError(t, store.Set(ctx, rec))

	got, err := r.EnsureInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(*legacy.InstalledAt))
}

func TestEnsureInstalled_CorruptTimestampFallsBackToNow(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{}
	r, store, _ := newTestResolver(t, svc, Options{Now: func() time.Time { return frozen }})
	ctx := context.Background()

	rec := storage.Record{}
	require.NoError(t, rec.Encode(storage.KeyInstalledAt, "not-a-date"))
	require.NoError(t, store.Set(ctx, rec))

	got, err := r.EnsureInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(frozen))

	// reset happened once; the value is now stable
	again, err := r.EnsureInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, again.Equal(frozen))
}

func TestResolveOnLoad_PromotesFlagFromCachedRecord(t *testing.T) {
	svc := &fakeService{}
	r, store, local := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	rec := storage.Record{}
	require.NoError(t, rec.Encode(storage.KeyUser, models.UserRecord{Paid: true}))
	require.NoError(t, store.Set(ctx, rec))

	entitled, err := r.ResolveOnLoad(ctx)
	require.NoError(t, err)
	assert.True(t, entitled)

	flagRec, err := store.Local().Get(ctx, storage.KeyProFlag)
	require.NoError(t, err)
	var flag bool
	ok, err := flagRec.Decode(storage.KeyProFlag, &flag)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, flag)

	// idempotent: unchanged inputs produce no further writes
	writes := local.setCount()
	entitled, err = r.ResolveOnLoad(ctx)
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.Equal(t, writes, local.setCount())
}

func TestResolveOnLoad_DemotesFlagFromCachedRecord(t *testing.T) {
	svc := &fakeService{}
	r, store, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	flagRec := storage.Record{}
	require.NoError(t, flagRec.Encode(storage.KeyProFlag, true))
	require.NoError(t, store.Local().Set(ctx, flagRec))

	rec := storage.Record{}
	require.NoError(t, rec.Encode(storage.KeyUser, models.UserRecord{Paid: false}))
	require.NoError(t, store.Set(ctx, rec))

	entitled, err := r.ResolveOnLoad(ctx)
	require.NoError(t, err)
	assert.False(t, entitled)
}

func TestResolveOnLoad_NoCachedRecordKeepsFlag(t *testing.T) {
	svc := &fakeService{}
	r, store, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	flagRec := storage.Record{}
	require.NoError(t, flagRec.Encode(storage.KeyProFlag, true))
	require.NoError(t, store.Local().Set(ctx, flagRec))

	entitled, err := r.ResolveOnLoad(ctx)
	require.NoError(t, err)
	assert.True(t, entitled)
}

func TestResolveOnLoad_PropagatesLocalOnlyPaymentState(t *testing.T) {
	svc := &fakeService{}
	r, store, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	rec := storage.Record{}
	require.NoError(t, rec.Encode(storage.KeyAPIKey, "key-123"))
	require.NoError(t, rec.Encode(storage.KeyUser, models.UserRecord{Paid: true}))
	require.NoError(t, store.Local().Set(ctx, rec))

	_, err := r.ResolveOnLoad(ctx)
	require.NoError(t, err)

	synced, err := store.Synced().Get(ctx, storage.KeyUser, storage.KeyAPIKey)
	require.NoError(t, err)
	assert.Contains(t, synced, storage.KeyUser)
	assert.Contains(t, synced, storage.KeyAPIKey)
}

func TestEnsureKey_ProvisionsOnce(t *testing.T) {
	svc := &fakeService{key: "key-123"}
	r, _, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	key, err := r.EnsureKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)

	key, err = r.EnsureKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)
	assert.Equal(t, 1, svc.createCalls)
}

func TestFetchRemote_FiresPaidListenerExactlyOnce(t *testing.T) {
	paid := models.UserRecord{Paid: true, PaidAt: ts("2026-05-01T10:00:00.000Z")}
	svc := &fakeService{key: "k", users: []models.UserRecord{paid}}
	r, _, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	var fired int
	r.OnPaid(func(u models.UserRecord) { fired++ })

	user, err := r.FetchRemote(ctx)
	require.NoError(t, err)
	require.NotNil(t, user.PaidAt)
	assert.Equal(t, 1, fired)

	// unchanged second fetch must not fire again
	_, err = r.FetchRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestFetchRemote_FiresTrialListenerOnTransition(t *testing.T) {
	free := models.UserRecord{}
	trial := models.UserRecord{TrialStartedAt: ts("2026-05-02T09:00:00.000Z")}
	svc := &fakeService{key: "k", users: []models.UserRecord{free, trial, trial}}
	r, _, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	var fired int
	r.OnTrialStarted(func(u models.UserRecord) { fired++ })

	_, err := r.FetchRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	_, err = r.FetchRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	_, err = r.FetchRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestFetchRemote_InstallTimeComesFromLocalStore(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := models.UserRecord{Paid: true, InstalledAt: ts("2020-01-01T00:00:00.000Z")}
	svc := &fakeService{key: "k", users: []models.UserRecord{remote}}
	r, _, _ := newTestResolver(t, svc, Options{Now: func() time.Time { return frozen }})
	ctx := context.Background()

	user, err := r.FetchRemote(ctx)
	require.NoError(t, err)
	require.NotNil(t, user.InstalledAt)
	assert.True(t, user.InstalledAt.Equal(frozen))
}

func TestFetchRemote_ErrorLeavesCacheUntouched(t *testing.T) {
	svc := &fakeService{key: "k", fetchErr: errors.New("network down")}
	r, store, _ := newTestResolver(t, svc, Options{})
	ctx := context.Background()

	cached := storage.Record{}
	require.NoError(t, cached.Encode(storage.KeyUser, models.UserRecord{Paid: true}))
	require.NoError(t, store.Set(ctx, cached))

	_, err := r.FetchRemote(ctx)
	require.Error(t, err)

	rec, err := store.Get(ctx, storage.KeyUser)
	require.NoError(t, err)
	var user models.UserRecord
	ok, err := rec.Decode(storage.KeyUser, &user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, user.Paid)
}

func TestPollUntilPaid_ReturnsOncePaid(t *testing.T) {
	free := models.UserRecord{}
	paid := models.UserRecord{Paid: true, PaidAt: ts("2026-05-01T10:00:00.000Z")}
	svc := &fakeService{key: "k", users: []models.UserRecord{free, free, paid}}
	r, _, _ := newTestResolver(t, svc, Options{PollAttempts: 10})
	ctx := context.Background()

	user, err := r.PollUntilPaid(ctx)
	require.NoError(t, err)
	require.NotNil(t, user.PaidAt)
}

func TestPollUntilPaid_ExhaustsAttempts(t *testing.T) {
	svc := &fakeService{key: "k", users: []models.UserRecord{{}}}
	r, _, _ := newTestResolver(t, svc, Options{PollAttempts: 3})
	ctx := context.Background()

	_, err := r.PollUntilPaid(ctx)
	require.ErrorIs(t, err, common.ErrPaymentNotConfirmed)
	assert.Equal(t, 3, svc.fetchCalls)
}

func TestPollUntilPaid_ConcurrentCallsShareOneLoop(t *testing.T) {
	free := models.UserRecord{}
	paid := models.UserRecord{Paid: true, PaidAt: ts("2026-05-01T10:00:00.000Z")}
	svc := &fakeService{key: "k", users: []models.UserRecord{free, free, free, paid}}
	r, _, _ := newTestResolver(t, svc, Options{PollInterval: 5 * time.Millisecond, PollAttempts: 20})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*models.UserRecord, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.PollUntilPaid(ctx)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.NotNil(t, results[i].PaidAt)
	}
	// one shared loop, not three: four queued states, four fetches
	assert.Equal(t, 4, svc.fetchCalls)
}

func TestPollUntilPaid_ContextCancellation(t *testing.T) {
	svc := &fakeService{key: "k", users: []models.UserRecord{{}}}
	r, _, _ := newTestResolver(t, svc, Options{PollInterval: time.Hour, PollAttempts: 10})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.PollUntilPaid(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
