package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kyoseo/auth-api/internal/events"
	"github.com/kyoseo/auth-api/internal/session"
	"github.com/kyoseo/auth-api/internal/token"
	"github.com/kyoseo/auth-api/internal/user"
)

// fakeDirectory is an in-memory UserDirectory for tests.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*user.User // by id
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]*user.User)}
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrNotFound
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, user.ErrNotFound
}

func (d *fakeDirectory) Create(_ context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *u
	d.users[u.ID] = &clone
	return nil
}

type testEnv struct {
	codec     *token.Codec
	store     *session.Store
	detector  *session.Detector
	guard     *Guard
	service   *Service
	handler   *Handler
	users     *fakeDirectory
	sink      *events.ChannelSink
	publisher *events.Publisher
	redis     *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("test-access-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("test-refresh-secret"),
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	sink := events.NewChannelSink(64)
	publisher := events.NewPublisher(events.Config{BufferSize: 64}, sink)
	t.Cleanup(publisher.Close)

	store := session.NewStore(rdb)
	detector := session.NewDetector(store, publisher)
	users := newFakeDirectory()
	service := NewService(codec, store, users, 24*time.Hour, 5*time.Second)

	env := &testEnv{
		codec:     codec,
		store:     store,
		detector:  detector,
		guard:     NewGuard(codec, store, detector, publisher),
		service:   service,
		handler:   NewHandler(service, store),
		users:     users,
		sink:      sink,
		publisher: publisher,
		redis:     mr,
	}
	return env
}

func (e *testEnv) seedUser(t *testing.T, email, password string) *user.User {
	t.Helper()
	u, err := e.service.Signup(context.Background(), SignupRequest{
		Name:     "Test User",
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestSigninIssuesSessionAndPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("incomplete token pair")
	}

	access, err := env.codec.Verify(token.KindAccess, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if access.Subject != u.ID || access.Email != "a@b.com" || access.Role != user.DefaultRole {
		t.Fatalf("access claims mismatch: %+v", access)
	}

	refresh, err := env.codec.Verify(token.KindRefresh, pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.SessionID != access.SessionID {
		t.Fatal("pair bound to different sessions")
	}
	// Refresh tokens carry no denormalized identity.
	if refresh.Email != "" || refresh.Name != "" {
		t.Fatalf("refresh claims leak identity: %+v", refresh)
	}

	active, err := env.store.SessionActive(ctx, u.ID, access.SessionID)
	if err != nil || !active {
		t.Fatalf("session not registered: (%v, %v)", active, err)
	}
	stored, ok, err := env.store.RefreshToken(ctx, u.ID, access.SessionID)
	if err != nil || !ok || stored != pair.RefreshToken {
		t.Fatalf("stored refresh mismatch: (%q, %v, %v)", stored, ok, err)
	}
}

func TestSigninRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "a@b.com", "pw")

	// Wrong password and unknown email are indistinguishable.
	if _, err := env.service.Signin(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := env.service.Signin(ctx, "nobody@b.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	oldClaims, err := env.codec.Verify(token.KindRefresh, pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	rotated, err := env.service.Refresh(ctx, oldClaims, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	newClaims, err := env.codec.Verify(token.KindRefresh, rotated.RefreshToken)
	if err != nil {
		t.Fatalf("verify rotated: %v", err)
	}
	if newClaims.SessionID == oldClaims.SessionID {
		t.Fatal("session id was reused across rotation")
	}
	if newClaims.Subject != u.ID {
		t.Fatalf("subject changed: %s", newClaims.Subject)
	}

	// Old state invalidated, new state live.
	if active, _ := env.store.SessionActive(ctx, u.ID, oldClaims.SessionID); active {
		t.Fatal("old session still active")
	}
	if _, ok, _ := env.store.RefreshToken(ctx, u.ID, oldClaims.SessionID); ok {
		t.Fatal("old refresh token still stored")
	}
	if active, _ := env.store.SessionActive(ctx, u.ID, newClaims.SessionID); !active {
		t.Fatal("new session not active")
	}
	stored, ok, _ := env.store.RefreshToken(ctx, u.ID, newClaims.SessionID)
	if !ok || stored != rotated.RefreshToken {
		t.Fatal("new refresh token not stored")
	}
}

func TestRefreshRejectsMismatchedStoredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	claims, _ := env.codec.Verify(token.KindRefresh, pair.RefreshToken)

	// The stored value was replaced (e.g. by a later signin on the same
	// session); the presented token no longer matches.
	if err := env.store.SaveRefreshToken(ctx, claims.Subject, claims.SessionID, "different", time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if _, err := env.service.Refresh(ctx, claims, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshRejectsInactiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	claims, _ := env.codec.Verify(token.KindRefresh, pair.RefreshToken)

	if err := env.store.RemoveSession(ctx, claims.Subject, claims.SessionID); err != nil {
		t.Fatalf("remove session: %v", err)
	}

	if _, err := env.service.Refresh(ctx, claims, pair.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestRefreshLockConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	claims, _ := env.codec.Verify(token.KindRefresh, pair.RefreshToken)

	lock, err := env.store.AcquireLock(ctx, claims.SessionID, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release(ctx)

	if _, err := env.service.Refresh(ctx, claims, pair.RefreshToken); !errors.Is(err, session.ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "a@b.com", "pw")

	pair, err := env.service.Signin(ctx, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}
	claims, _ := env.codec.Verify(token.KindAccess, pair.AccessToken)

	if err := env.service.Logout(ctx, u.ID, claims.SessionID); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := env.service.Logout(ctx, u.ID, claims.SessionID); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	if active, _ := env.store.SessionActive(ctx, u.ID, claims.SessionID); active {
		t.Fatal("session survived logout")
	}
	if _, ok, _ := env.store.RefreshToken(ctx, u.ID, claims.SessionID); ok {
		t.Fatal("refresh token survived logout")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "a@b.com", "pw")

	_, err := env.service.Signup(ctx, SignupRequest{Name: "Again", Email: "a@b.com", Password: "pw2"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestSignupHashesPasswordAndDefaultsRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.Signup(ctx, SignupRequest{Name: "N", Email: "n@b.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if created.Role != user.DefaultRole {
		t.Fatalf("role = %s", created.Role)
	}

	stored, err := env.users.FindByEmail(ctx, "n@b.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.Password == "secret" {
		t.Fatal("password stored in plaintext")
	}
	if !user.CheckPassword(stored.Password, "secret") {
		t.Fatal("stored hash does not verify")
	}
}
