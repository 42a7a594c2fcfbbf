package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"salonpos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Kind:      domain.PrincipalStaff,
				TenantID:  "salon-a",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()

	manager := NewAuthManager("test-secret", time.Hour, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.TenantID != "salon-a" {
		t.Fatalf("expected tenant salon-a in login response, got %q", resp.TenantID)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestTokenCarriesTenantAndKind(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, legacyAdminStore())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	p, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if p.TenantID != "salon-a" || p.Subject != "admin" || p.Role != "admin" || p.Kind != domain.PrincipalStaff {
		t.Fatalf("unexpected principal %+v", p)
	}

	other := NewAuthManager("another-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, legacyAdminStore())
	token, err := manager.sign("admin", credential{role: "admin", tenantID: "salon-a", kind: domain.PrincipalStaff}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateAccountStoresPasswordHash(t *testing.T) {
	store := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, store)
	ctx := context.Background()

	account, err := manager.CreateAccount(ctx, "salon-a", domain.AccountCreateRequest{
		Username: "Stylist2",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	if account.Username != "stylist2" || account.Role != "staff" || account.Password != "" {
		t.Fatalf("unexpected account %+v", account)
	}
	if !strings.HasPrefix(store.users["stylist2"].Password, "$2") {
		t.Fatalf("expected stored password to be a bcrypt hash")
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "stylist2", Password: "pass1234"}); err != nil {
		t.Fatalf("login with new account failed: %v", err)
	}

	_, err = manager.CreateAccount(ctx, "salon-a", domain.AccountCreateRequest{Username: "stylist2", Password: "pass1234"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected duplicate username to be rejected, got %v", err)
	}
	_, err = manager.CreateAccount(ctx, "salon-a", domain.AccountCreateRequest{Username: "ab", Password: "pass1234"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected short username to be rejected, got %v", err)
	}
}

func TestCustomerAccountGetsCustomerPrincipal(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, legacyAdminStore())
	ctx := context.Background()

	_, err := manager.CreateAccount(ctx, "salon-a", domain.AccountCreateRequest{
		Username: "client-77",
		Password: "pass1234",
		Role:     "admin",
		Kind:     domain.PrincipalCustomer,
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "client-77", Password: "pass1234"})
	if err != nil {
		t.Fatalf("customer login failed: %v", err)
	}
	p, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Kind != domain.PrincipalCustomer || p.Role != "customer" {
		t.Fatalf("customers must not escalate their role, got %+v", p)
	}

	accounts := manager.ListAccounts(ctx, "salon-a")
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts in salon-a, got %d", len(accounts))
	}
	if len(manager.ListAccounts(ctx, "salon-b")) != 0 {
		t.Fatalf("expected no accounts leaking into salon-b")
	}
}
