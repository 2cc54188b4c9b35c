package auth

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	valid := map[string]Role{
		"admin":    RoleAdmin,
		"WRITER":   RoleWriter,
		"  user  ": RoleUser,
	}
	for raw, want := range valid {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", raw, got, want)
		}
	}

	for _, raw := range []string{"", "root", "superadmin"} {
		if _, err := ParseRole(raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseRole(%q) err = %v, want ErrInvalidInput", raw, err)
		}
	}
}

func TestRoleSatisfies(t *testing.T) {
	cases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapAdmin, true},
		{RoleAdmin, CapWriter, true},
		{RoleAdmin, CapAuthenticated, true},
		{RoleWriter, CapAdmin, false},
		{RoleWriter, CapWriter, true},
		{RoleWriter, CapAuthenticated, true},
		{RoleUser, CapAdmin, false},
		{RoleUser, CapWriter, false},
		{RoleUser, CapAuthenticated, true},
		{Role("ghost"), CapAuthenticated, false},
	}
	for _, tc := range cases {
		if got := tc.role.Satisfies(tc.cap); got != tc.want {
			t.Fatalf("%s.Satisfies(%d) = %v, want %v", tc.role, tc.cap, got, tc.want)
		}
	}
}
