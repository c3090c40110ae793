package httpapi

import (
	"context"
	"testing"
	"time"

	"tokokita/backend/internal/domain"
	"tokokita/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("round-trip-secret", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.TenantID != "tenant-demo" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" || actor.TenantID != "tenant-demo" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if actor.UserID == "" {
		t.Fatalf("expected user id carried through the token")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("issuer-secret", time.Hour, memory.NewSeeded())
	verifier := NewAuthManager("other-secret", time.Hour, memory.NewSeeded())

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.NewSeeded()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		ID:       "user-legacy",
		TenantID: "tenant-demo",
		Username: "legacy",
		Password: "plaintext-pass",
		Role:     "cashier",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	auth := NewAuthManager("secret", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintext-pass"}); err != nil {
		t.Fatalf("expected upgraded legacy credentials to log in: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == "legacy" && !isPasswordHash(user.Password) {
			t.Fatalf("expected stored password to be upgraded to a hash")
		}
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, memory.NewSeeded())
	actor := domain.Actor{TenantID: "tenant-demo", Role: "admin"}

	if _, err := auth.CreateCashier(actor, domain.CashierCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(actor, domain.CashierCreateRequest{Username: "validname", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := auth.CreateCashier(actor, domain.CashierCreateRequest{Username: "cashier", Password: "longenough"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	user, err := auth.CreateCashier(actor, domain.CashierCreateRequest{Username: "KasirDua", Password: "rahasia2"})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if user.Username != "kasirdua" {
		t.Fatalf("expected lowercased username, got %q", user.Username)
	}

	found := false
	for _, c := range auth.ListCashiers(actor) {
		if c.Username == "kasirdua" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new cashier listed for the tenant")
	}
}
