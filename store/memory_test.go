package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCreateAndLookupUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u := &User{
		ID:          "u1",
		Email:       "Alice@Example.com",
		TenantID:    "acme",
		Permissions: []string{"read"},
		Active:      true,
	}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	byEmail, err := m.UserByEmail(ctx, "acme", "alice@example.com")
	if err != nil {
		t.Fatalf("UserByEmail error: %v", err)
	}
	if byEmail.ID != "u1" {
		t.Fatalf("unexpected user: %+v", byEmail)
	}

	if _, err := m.UserByEmail(ctx, "other-tenant", "alice@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestMemoryDuplicateEmailPerTenant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := &User{ID: "u1", Email: "a@example.com", TenantID: "acme"}
	if err := m.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	dup := &User{ID: "u2", Email: "A@EXAMPLE.COM", TenantID: "acme"}
	if err := m.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// Same email in another tenant is allowed.
	other := &User{ID: "u3", Email: "a@example.com", TenantID: "globex"}
	if err := m.CreateUser(ctx, other); err != nil {
		t.Fatalf("CreateUser(other tenant) error: %v", err)
	}
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u := &User{ID: "u1", Email: "a@example.com"}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	if err := m.UpdatePasswordHash(ctx, "u1", "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash error: %v", err)
	}
	if err := m.SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}

	got, err := m.UserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("UserByID error: %v", err)
	}
	if got.PasswordHash != "new-hash" || got.Active {
		t.Fatalf("updates not applied: %+v", got)
	}

	if err := m.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}
	if err := m.DeleteUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := m.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCountUsersScopedByTenant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, u := range []*User{
		{ID: "u1", Email: "a@example.com", TenantID: "acme"},
		{ID: "u2", Email: "b@example.com", TenantID: "acme"},
		{ID: "u3", Email: "c@example.com", TenantID: "globex"},
	} {
		if err := m.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser error: %v", err)
		}
	}

	n, err := m.CountUsers(ctx, "acme")
	if err != nil {
		t.Fatalf("CountUsers error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 acme users, got %d", n)
	}
}

func TestMemoryKeyRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	k := &Key{
		LocatorHash:  "locator-1",
		DatabaseID:   "db-1",
		KeyHash:      "$argon2id$...",
		EncryptedKey: []byte{1, 2, 3},
		ACL:          "owner",
		ExpiresAt:    &expires,
	}
	if err := m.SaveKey(ctx, k); err != nil {
		t.Fatalf("SaveKey error: %v", err)
	}

	got, err := m.KeyByLocator(ctx, "locator-1")
	if err != nil {
		t.Fatalf("KeyByLocator error: %v", err)
	}
	if got.DatabaseID != "db-1" || got.ACL != "owner" {
		t.Fatalf("unexpected key: %+v", got)
	}

	// Mutating the returned copy must not affect the stored key.
	got.EncryptedKey[0] = 99
	again, err := m.KeyByLocator(ctx, "locator-1")
	if err != nil {
		t.Fatalf("KeyByLocator error: %v", err)
	}
	if again.EncryptedKey[0] != 1 {
		t.Fatal("stored key mutated through returned copy")
	}

	if err := m.DeleteKey(ctx, "locator-1"); err != nil {
		t.Fatalf("DeleteKey error: %v", err)
	}
	if _, err := m.KeyByLocator(ctx, "locator-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
