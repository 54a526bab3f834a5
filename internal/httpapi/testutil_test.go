package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"geometa.org/internal/auth"
	"geometa.org/internal/ids"
	"geometa.org/internal/metadata"
	"geometa.org/internal/rate"
	"geometa.org/internal/revoke"
)

// fakeAuthStore is an in-memory auth.Store for handler tests.
type fakeAuthStore struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	tokens map[string]*auth.ResetToken
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:  map[string]*auth.User{},
		tokens: map[string]*auth.ResetToken{},
	}
}

func (s *fakeAuthStore) Users() auth.UserStore             { return (*fakeUserStore)(s) }
func (s *fakeAuthStore) ResetTokens() auth.ResetTokenStore { return (*fakeTokenStore)(s) }

type fakeUserStore fakeAuthStore

func (s *fakeUserStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrDuplicateEmail
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeUserStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeUserStore) List(_ context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *fakeUserStore) UpdateRole(_ context.Context, userID string, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Role = role
	return nil
}

func (s *fakeUserStore) MarkEmailVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

type fakeTokenStore fakeAuthStore

func (s *fakeTokenStore) Create(_ context.Context, tok *auth.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *fakeTokenStore) Consume(_ context.Context, id, purpose string) (*auth.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || tok.Purpose != purpose {
		return nil, auth.ErrInvalidResetToken
	}
	delete(s.tokens, id)
	return tok, nil
}

func (s *fakeTokenStore) DeleteForUser(_ context.Context, userID, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tok := range s.tokens {
		if tok.UserID == userID && tok.Purpose == purpose {
			delete(s.tokens, id)
		}
	}
	return nil
}

// fakeRecordStore is an in-memory metadata.Store.
type fakeRecordStore struct {
	mu   sync.Mutex
	byID map[string]*metadata.Record
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{byID: map[string]*metadata.Record{}}
}

func (s *fakeRecordStore) Create(_ context.Context, rec *metadata.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = ids.New()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	s.byID[rec.ID] = &cp
	return nil
}

func (s *fakeRecordStore) Find(_ context.Context, id string) (*metadata.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeRecordStore) Update(_ context.Context, id string, upd metadata.Update) (*metadata.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Abstract != nil {
		rec.Abstract = *upd.Abstract
	}
	if upd.Keywords != nil {
		rec.Keywords = upd.Keywords
	}
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (s *fakeRecordStore) SetStatus(_ context.Context, id string, status metadata.Status) (*metadata.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	rec.Status = status
	cp := *rec
	return &cp, nil
}

func (s *fakeRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *fakeRecordStore) Search(_ context.Context, q metadata.Query) ([]*metadata.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*metadata.Record
	for _, rec := range s.byID {
		if q.OwnerID != "" && rec.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// harness wires a full API over in-memory stores and miniredis.
type harness struct {
	api     *API
	handler http.Handler
	store   *fakeAuthStore
	revoker *revoke.Store
	mr      *miniredis.Miniredis
	access  *auth.Codec
}

func newHarness(t *testing.T, opts ...auth.ServiceOption) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	access, err := newTestCodec(auth.KindAccess, "handler-access-secret", time.Hour)
	if err != nil {
		t.Fatalf("access codec: %v", err)
	}
	refresh, err := newTestCodec(auth.KindRefresh, "handler-refresh-secret", 24*time.Hour)
	if err != nil {
		t.Fatalf("refresh codec: %v", err)
	}

	store := newFakeAuthStore()
	revoker := revoke.New(client, "")
	limiter := rate.New(client, "")

	svc, err := auth.NewService(store, access, refresh, revoker, opts...)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	metaSvc, err := metadata.NewService(newFakeRecordStore())
	if err != nil {
		t.Fatalf("metadata service: %v", err)
	}

	cache := auth.NewTokenCache()
	t.Cleanup(cache.Close)

	api := New(Config{
		Version:     "test",
		Auth:        svc,
		Metadata:    metaSvc,
		TokenCache:  cache,
		AccessCodec: access,
		Revoker:     revoker,
		Limiter:     limiter,
	})
	return &harness{
		api:     api,
		handler: api.Handler(),
		store:   store,
		revoker: revoker,
		mr:      mr,
		access:  access,
	}
}

// newTestCodec keeps codec construction in one place for the harness.
func newTestCodec(kind auth.TokenKind, secret string, ttl time.Duration) (*auth.Codec, error) {
	return auth.NewCodec(kind, secret, ttl, "geometa")
}

// seedUser inserts an account directly into the fake store.
func (h *harness) seedUser(t *testing.T, email, password string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &auth.User{
		Email:         email,
		Name:          "Seeded",
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
	}
	if err := h.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// login issues a request through the full middleware chain and returns
// the token pair.
func (h *harness) login(t *testing.T, email, password string) tokenPairResponse {
	t.Helper()
	rec := h.do(t, jsonRequest(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", rec.Code, rec.Body.String())
	}
	var pair tokenPairResponse
	decodeBody(t, rec, &pair)
	return pair
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withCSRFPair attaches a matching double-submit cookie and header.
func withCSRFPair(req *http.Request) *http.Request {
	const token = "test-csrf-token"
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: token})
	req.Header.Set(csrfHeader, token)
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &payload)
	return payload.Code
}
