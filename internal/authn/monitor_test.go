package authn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rundownhq/collab-core/internal/store"
)

type fakeSessionStore struct {
	mu      sync.Mutex
	session store.Session
	ok      bool
	err     error
}

func (f *fakeSessionStore) GetDocument(ctx context.Context, documentID string) (store.DocumentRecord, error) {
	return store.DocumentRecord{}, nil
}
func (f *fakeSessionStore) UpdateCell(ctx context.Context, update store.CellUpdate) error { return nil }
func (f *fakeSessionStore) UpdateStructural(ctx context.Context, update store.StructuralUpdate) error {
	return nil
}
func (f *fakeSessionStore) Subscribe(ctx context.Context, documentID string, kind store.ChannelKind) (<-chan store.ChannelEvent, error) {
	return nil, nil
}
func (f *fakeSessionStore) GetSession(ctx context.Context) (store.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.ok, f.err
}
func (f *fakeSessionStore) RestoreFromRevision(ctx context.Context, documentID, revisionID string) error {
	return nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsSessionValidFalseWithNoSession(t *testing.T) {
	m := New(&fakeSessionStore{}, nil)
	require.False(t, m.IsSessionValid())
}

func TestHandleSignedInMakesSessionValidAndNotifiesListeners(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))

	var got *store.Session
	m.Subscribe("coordinator", func(s *store.Session) { got = s })

	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	require.True(t, m.IsSessionValid())
	require.NotNil(t, got)
	require.Equal(t, "u1", got.UserID)
	require.True(t, m.WasRecentlyRefreshed())
}

func TestIsSessionValidFalseAfterExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))
	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(-time.Minute)})
	require.False(t, m.IsSessionValid())
}

func TestHandleSignedOutClearsSessionAndNotifiesNil(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))
	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	var gotNil bool
	var stopCalled bool
	m.Subscribe("coordinator", func(s *store.Session) {
		if s == nil {
			gotNil = true
		}
	})
	m.OnSignedOut(func() { stopCalled = true })

	m.HandleSignedOut()

	require.False(t, m.IsSessionValid())
	require.True(t, gotNil)
	require.True(t, stopCalled)
}

func TestReSubscribeReplacesPriorListener(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))

	var calls int
	m.Subscribe("x", func(s *store.Session) { calls++ })
	m.Subscribe("x", func(s *store.Session) { calls += 10 })

	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})
	require.Equal(t, 10, calls)
}

func TestHandleTokenRefreshedWaitsThenVerifiesViaGetSession(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := &fakeSessionStore{session: store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)}, ok: true}
	m := New(st, fixedNow(now))
	m.refreshWait = time.Millisecond

	var got *store.Session
	m.Subscribe("coordinator", func(s *store.Session) { got = s })

	m.HandleTokenRefreshed(context.Background())

	require.NotNil(t, got)
	require.Equal(t, "u1", got.UserID)
	require.True(t, m.IsSessionValid())
}

func TestHandleTokenRefreshedSignsOutWhenGetSessionReportsNone(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := &fakeSessionStore{ok: false}
	m := New(st, fixedNow(now))
	m.refreshWait = time.Millisecond
	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	var stopCalled bool
	m.OnSignedOut(func() { stopCalled = true })

	m.HandleTokenRefreshed(context.Background())

	require.False(t, m.IsSessionValid())
	require.True(t, stopCalled)
}

func TestWaitForRefreshReturnsImmediatelyWhenAlreadyValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))
	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	require.True(t, m.WaitForRefresh(context.Background(), time.Second))
}

func TestWaitForRefreshUnblocksOnLateSignIn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))

	done := make(chan bool, 1)
	go func() {
		done <- m.WaitForRefresh(context.Background(), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	m.HandleSignedIn(store.Session{UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	require.True(t, <-done)
}

func TestWaitForRefreshTimesOutWithoutASignIn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := New(&fakeSessionStore{}, fixedNow(now))
	require.False(t, m.WaitForRefresh(context.Background(), 10*time.Millisecond))
}
