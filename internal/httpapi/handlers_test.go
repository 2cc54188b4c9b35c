package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nashra.news/internal/auth"
)

type captureMailer struct {
	mu            sync.Mutex
	resets        []string
	verifications []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, token)
	return nil
}

func (m *captureMailer) SendVerification(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, token)
	return nil
}

func (m *captureMailer) lastReset() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		return ""
	}
	return m.resets[len(m.resets)-1]
}

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *auth.MemoryStore
	svc     *auth.Service
	mailer  *captureMailer
	t       *testing.T
}

func newTestAPI(t *testing.T, opts ...auth.ServiceOption) *apiClient {
	t.Helper()

	store := auth.NewMemoryStore()
	mailer := &captureMailer{}
	signer := auth.NewTokenSigner([]byte("test-secret"), "nashra", 15*time.Minute)
	base := []auth.ServiceOption{
		auth.WithMailer(mailer),
		auth.WithLoginLimiter(auth.NewLoginLimiter(100, time.Minute)),
	}
	svc := auth.NewService(store, signer, append(base, opts...)...)

	api := New(svc, ReadyProbe{}, Options{Version: "test"})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar

	return &apiClient{
		baseURL: srv.URL,
		client:  client,
		store:   store,
		svc:     svc,
		mailer:  mailer,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body, nil)
}

func (c *apiClient) get(path string) *http.Response {
	return c.do(http.MethodGet, path, nil, nil)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload
}

// registerUser creates an account through the public endpoint.
func (c *apiClient) registerUser(email, password string) {
	c.t.Helper()
	resp := c.post("/auth/register", map[string]string{
		"email": email, "username": "u-" + email, "password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
}

// login authenticates and lets the jar capture the session cookies.
func (c *apiClient) login(email, password string) *http.Response {
	c.t.Helper()
	return c.post("/auth/login", map[string]string{"email": email, "password": password})
}

func (c *apiClient) mustLogin(email, password string) {
	c.t.Helper()
	resp := c.login(email, password)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
}

// newSession shares the server and store but starts an empty cookie jar,
// simulating a second browser.
func (c *apiClient) newSession() *apiClient {
	c.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		c.t.Fatalf("cookie jar: %v", err)
	}
	cp := *c
	cp.client = &http.Client{Jar: jar}
	return &cp
}

func (c *apiClient) bootstrapAdmin(email, password string) {
	c.t.Helper()
	if err := c.svc.EnsureDefaultAdmin(context.Background(), email, password); err != nil {
		c.t.Fatalf("bootstrap admin: %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("healthz body: %v", body)
	}

	resp = c.get("/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/info")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info: %d", resp.StatusCode)
	}
	body = decodeBody(t, resp)
	if body["name"] != "nashra-auth" {
		t.Fatalf("info body: %v", body)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/nope")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
