package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/auth/login":                   "/auth/login",
		"/auth/refresh?retry=1":         "/auth/refresh",
		"/admin/users":                  "/admin/users",
		"/admin/users/u_01":             "/admin/users/:id",
		"/admin/users/u_01/role":        "/admin/users/:id/role",
		"/admin/users/u_01/role/extra":  "/admin/users/u_01/role/extra",
		"/admin/users/u_01?fields=role": "/admin/users/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
