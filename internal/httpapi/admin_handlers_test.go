package httpapi

import (
	"context"
	"net/http"
	"testing"

	"nashra.news/internal/auth"
)

func (c *apiClient) userID(email string) string {
	c.t.Helper()
	ctx := context.Background()
	u, err := c.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		c.t.Fatalf("find %s: %v", email, err)
	}
	return u.ID
}

func TestAdminListUsers(t *testing.T) {
	c := newTestAPI(t)
	c.bootstrapAdmin("admin@nashra.news", "adm1nSecret")
	c.registerUser("reader@nashra.news", "s3curePass")
	c.mustLogin("admin@nashra.news", "adm1nSecret")

	resp := c.get("/admin/users")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	users, ok := body["users"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("expected 2 users, got %v", body)
	}
	for _, raw := range users {
		u := raw.(map[string]any)
		if _, leaked := u["password_hash"]; leaked {
			t.Fatal("password hash leaked in user list")
		}
	}
}

func TestAdminRoleAndStatusManagement(t *testing.T) {
	c := newTestAPI(t)
	c.bootstrapAdmin("admin@nashra.news", "adm1nSecret")
	c.registerUser("reader@nashra.news", "s3curePass")
	c.mustLogin("admin@nashra.news", "adm1nSecret")
	readerID := c.userID("reader@nashra.news")

	resp := c.do(http.MethodPatch, "/admin/users/"+readerID+"/role", map[string]string{"role": "writer"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("role update: %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPatch, "/admin/users/"+readerID+"/role", map[string]string{"role": "superuser"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus role: got %d, want 400", resp.StatusCode)
	}

	active := false
	resp = c.do(http.MethodPatch, "/admin/users/"+readerID+"/status", map[string]any{"active": active}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d", resp.StatusCode)
	}

	ctx := context.Background()
	u, err := c.store.Users(ctx).Find(ctx, readerID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.Role != auth.RoleWriter || u.IsActive {
		t.Fatalf("unexpected state: role=%s active=%v", u.Role, u.IsActive)
	}
}

func TestAdminSelfActionForbidden(t *testing.T) {
	c := newTestAPI(t)
	c.bootstrapAdmin("admin@nashra.news", "adm1nSecret")
	c.mustLogin("admin@nashra.news", "adm1nSecret")
	adminID := c.userID("admin@nashra.news")

	resp := c.do(http.MethodDelete, "/admin/users/"+adminID, nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self delete: got %d, want 403", resp.StatusCode)
	}

	resp = c.do(http.MethodPatch, "/admin/users/"+adminID+"/role", map[string]string{"role": "user"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self demote: got %d, want 403", resp.StatusCode)
	}

	// the account is unchanged
	ctx := context.Background()
	u, err := c.store.Users(ctx).Find(ctx, adminID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.Role != auth.RoleAdmin {
		t.Fatalf("admin role changed to %s", u.Role)
	}
}

func TestAdminDeleteUser(t *testing.T) {
	c := newTestAPI(t)
	c.bootstrapAdmin("admin@nashra.news", "adm1nSecret")
	c.registerUser("reader@nashra.news", "s3curePass")
	c.mustLogin("admin@nashra.news", "adm1nSecret")
	readerID := c.userID("reader@nashra.news")

	resp := c.do(http.MethodDelete, "/admin/users/"+readerID, nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}

	resp = c.do(http.MethodDelete, "/admin/users/"+readerID, nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: got %d, want 404", resp.StatusCode)
	}
}

func TestWriterApplicationEndpoints(t *testing.T) {
	c := newTestAPI(t)
	c.bootstrapAdmin("admin@nashra.news", "adm1nSecret")
	c.registerUser("aspiring@nashra.news", "s3curePass")

	c.mustLogin("aspiring@nashra.news", "s3curePass")
	resp := c.post("/writer/apply", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("apply: got %d, want 202", resp.StatusCode)
	}
	resp = c.post("/writer/apply", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second apply: got %d, want 409", resp.StatusCode)
	}

	// the admin approves from another session
	admin := c.newSession()
	admin.mustLogin("admin@nashra.news", "adm1nSecret")
	aspirantID := c.userID("aspiring@nashra.news")
	approve := true
	resp = admin.post("/admin/users/"+aspirantID+"/writer-review", map[string]any{"approve": approve})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: %d", resp.StatusCode)
	}

	ctx := context.Background()
	u, err := c.store.Users(ctx).Find(ctx, aspirantID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.Role != auth.RoleWriter {
		t.Fatalf("role after approval: %s", u.Role)
	}
}
