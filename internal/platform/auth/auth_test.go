package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeUserStore struct {
	users map[string]User
}

func (s *fakeUserStore) UserByKeyDigest(_ context.Context, digest string) (User, bool, error) {
	u, ok := s.users[digest]
	return u, ok, nil
}

func TestAuthorizationMatrix(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermWrite, true},
		{RoleAdmin, PermRead, true},
		{RoleAdmin, PermExportUnmasked, true},
		{RoleAdmin, PermExportMasked, false},
		{RoleAdmin, PermReport, true},
		{RoleAuditor, PermWrite, false},
		{RoleAuditor, PermRead, true},
		{RoleAuditor, PermExportUnmasked, true},
		{RoleAuditor, PermExportMasked, false},
		{RoleAuditor, PermReport, true},
		{RoleInvestigator, PermWrite, true},
		{RoleInvestigator, PermRead, true},
		{RoleInvestigator, PermExportUnmasked, false},
		{RoleInvestigator, PermExportMasked, true},
		{RoleInvestigator, PermReport, false},
	}
	for _, tc := range cases {
		err := Authorize(User{Email: "u@example.com", Role: tc.role}, tc.perm)
		got := err == nil
		if got != tc.want {
			t.Errorf("authorize(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
		if err != nil {
			var authz *AuthorizationError
			if !errors.As(err, &authz) {
				t.Errorf("authorize(%s, %s) returned %T, want *AuthorizationError", tc.role, tc.perm, err)
			}
		}
	}
}

func TestAuthorizeRequiresAllPermissions(t *testing.T) {
	u := User{Email: "aud@example.com", Role: RoleAuditor}
	if err := Authorize(u, PermRead, PermReport); err != nil {
		t.Fatalf("auditor holds read+report: %v", err)
	}
	if err := Authorize(u, PermRead, PermWrite); err == nil {
		t.Fatal("auditor must not hold write")
	}
}

func TestAuthenticateByAPIKeyDigest(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	store := &fakeUserStore{users: map[string]User{
		KeyDigest(key): {ID: 1, Email: "admin@example.com", Role: RoleAdmin},
	}}
	a := &Authenticator{Users: store}

	u, err := a.Authenticate(context.Background(), key, "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Email != "admin@example.com" || u.Role != RoleAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}

	var authn *AuthenticationError
	if _, err := a.Authenticate(context.Background(), "wrong-key", ""); !errors.As(err, &authn) {
		t.Fatalf("unknown key must fail authentication, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "", ""); !errors.As(err, &authn) {
		t.Fatalf("missing credential must fail authentication, got %v", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	tok, err := v.Sign("svc@example.com", RoleAuditor, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	u, err := v.ParseUser(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Email != "svc@example.com" || u.Role != RoleAuditor {
		t.Fatalf("unexpected user: %+v", u)
	}

	var authn *AuthenticationError
	other := NewJWTVerifier("other-secret")
	if _, err := other.ParseUser(tok); !errors.As(err, &authn) {
		t.Fatalf("wrong secret must fail, got %v", err)
	}

	expired, err := v.Sign("svc@example.com", RoleAuditor, -time.Hour)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := v.ParseUser(expired); !errors.As(err, &authn) {
		t.Fatalf("expired token must fail, got %v", err)
	}
}

func TestParseRoleClosedEnum(t *testing.T) {
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("unknown role must not parse")
	}
	r, err := ParseRole(" Admin ")
	if err != nil || r != RoleAdmin {
		t.Fatalf("role parsing must trim and lowercase, got %v %v", r, err)
	}
}
