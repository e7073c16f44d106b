package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"kanban/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	createFn   func(user store.User) error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	if m.createFn != nil {
		if err := m.createFn(user); err != nil {
			return store.User{}, err
		}
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func newTestService(users UserStore) *Service {
	return NewService(users).WithCost(bcrypt.MinCost)
}

func TestRegisterAndLogin(t *testing.T) {
	users := newMockUserStore()
	svc := newTestService(users)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{Email: " Avery@Example.com ", Password: "hunter22", Name: "Avery"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !strings.HasPrefix(user.ID, "usr_") || user.Email != "avery@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "hunter22" {
		t.Fatal("password stored in clear")
	}

	got, err := svc.Login(ctx, "AVERY@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("Login() user = %s, want %s", got.ID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "missing name", req: RegisterRequest{Email: "a@example.com", Password: "secret1"}},
		{name: "bad email", req: RegisterRequest{Email: "not-an-email", Password: "secret1", Name: "A"}},
		{name: "short password", req: RegisterRequest{Email: "a@example.com", Password: "12345", Name: "A"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestService(newMockUserStore()).Register(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Register() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	users := newMockUserStore()
	svc := newTestService(users)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "secret1", Name: "A"}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "secret2", Name: "B"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("second Register() error = %v, want ErrEmailTaken", err)
	}

	// A concurrent registration that wins the unique index.
	racy := newMockUserStore()
	racy.createFn = func(store.User) error { return store.ErrConflict }
	if _, err := newTestService(racy).Register(ctx, RegisterRequest{Email: "b@example.com", Password: "secret1", Name: "B"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("racing Register() error = %v, want ErrEmailTaken", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users := newMockUserStore()
	svc := newTestService(users)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "secret1", Name: "A"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := svc.Login(ctx, "a@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty login error = %v, want ErrInvalidInput", err)
	}
}
