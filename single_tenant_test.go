package authmode

import (
	"context"
	"errors"
	"testing"
)

func registerSingleTenantOwner(t *testing.T, mode AuthMode) *User {
	t.Helper()
	user, err := mode.CreateUser(context.Background(), CreateUserRequest{
		DatabaseID: "db-1",
		MasterKey:  "Str0ng!Key12345",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func TestSingleTenantRegisterAndAuthenticate(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	user := registerSingleTenantOwner(t, mode)
	if user.ID != "owner" {
		t.Fatalf("unexpected user id: %q", user.ID)
	}
	if len(user.Permissions) != 1 || user.Permissions[0] != "all" {
		t.Fatalf("expected [all] permissions, got %v", user.Permissions)
	}

	result, err := mode.AuthenticateUser(ctx, Credentials{
		DatabaseID: "db-1",
		MasterKey:  "Str0ng!Key12345",
	})
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}

	if result.User == nil || result.User.ID != "owner" {
		t.Fatalf("unexpected user: %+v", result.User)
	}
	if len(result.Permissions) != 1 || result.Permissions[0] != "all" {
		t.Fatalf("expected [all] permissions, got %v", result.Permissions)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.Tokens.AccessToken == result.Tokens.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
}

func TestSingleTenantRejectsBadCredentials(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	registerSingleTenantOwner(t, mode)

	cases := []Credentials{
		{},
		{MasterKey: "wrong"},
		{DatabaseID: "db-1", MasterKey: "Str0ng!Key12346"},
		{DatabaseID: "other-db", MasterKey: "Str0ng!Key12345"},
	}
	for i, creds := range cases {
		if _, err := mode.AuthenticateUser(ctx, creds); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("case %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestSingleTenantAuthenticateBeforeRegistration(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())

	_, err := mode.AuthenticateUser(context.Background(), Credentials{
		DatabaseID: "db-1",
		MasterKey:  "Str0ng!Key12345",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials before registration, got %v", err)
	}
}

func TestSingleTenantSecondRegistrationViolates(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	registerSingleTenantOwner(t, mode)

	_, err := mode.CreateUser(ctx, CreateUserRequest{
		DatabaseID: "db-1",
		MasterKey:  "Str0ng!Key12345",
	})
	if !errors.Is(err, ErrModeViolation) {
		t.Fatalf("expected ErrModeViolation on second CreateUser, got %v", err)
	}
}

func TestSingleTenantRegisterRejectsWrongKey(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())

	_, err := mode.CreateUser(context.Background(), CreateUserRequest{
		DatabaseID: "db-1",
		MasterKey:  "not-the-configured-key",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSingleTenantRefreshRotation(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	registerSingleTenantOwner(t, mode)
	result, err := mode.AuthenticateUser(ctx, Credentials{MasterKey: "Str0ng!Key12345"})
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}

	next, err := mode.RefreshToken(ctx, result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken error: %v", err)
	}
	if next.RefreshToken == result.Tokens.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	if _, err := mode.RefreshToken(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused on replay, got %v", err)
	}
}

func TestSingleTenantLogoutInvalidatesRefresh(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	registerSingleTenantOwner(t, mode)
	result, err := mode.AuthenticateUser(ctx, Credentials{MasterKey: "Str0ng!Key12345"})
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}

	if err := mode.Logout(ctx, result.User.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	if _, err := mode.RefreshToken(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected invalidated refresh token to be rejected, got %v", err)
	}
}

func TestSingleTenantDeleteAndReprovision(t *testing.T) {
	mode := newTestMode(t, validSingleTenantConfig())
	ctx := context.Background()

	user := registerSingleTenantOwner(t, mode)

	if err := mode.DeleteUser(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown id, got %v", err)
	}
	if err := mode.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}

	if _, err := mode.AuthenticateUser(ctx, Credentials{MasterKey: "Str0ng!Key12345"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after delete, got %v", err)
	}

	// The database can be provisioned again after deletion.
	registerSingleTenantOwner(t, mode)
}

func TestSingleTenantInitializeIdempotent(t *testing.T) {
	f := newTestFactory(t, validSingleTenantConfig())
	ctx := context.Background()

	mode, err := f.Mode(ctx)
	if err != nil {
		t.Fatalf("Mode error: %v", err)
	}
	registerSingleTenantOwner(t, mode)

	// Factory already initialized; a second call must not disturb state.
	if err := mode.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize error: %v", err)
	}

	if _, err := mode.AuthenticateUser(ctx, Credentials{MasterKey: "Str0ng!Key12345"}); err != nil {
		t.Fatalf("AuthenticateUser after re-init error: %v", err)
	}
}
