package custody

import (
	"errors"
	"testing"

	coreerrors "sktvault/core/errors"
)

func TestRequireAdmin(t *testing.T) {
	cfg := testConfig()
	if err := RequireAdmin(adminA, cfg); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := RequireAdmin(userB, cfg); !errors.Is(err, coreerrors.ErrNotAuthorizedAdmin) {
		t.Fatalf("expected NotAuthorizedAdmin, got %v", err)
	}
	if err := RequireAdmin(adminA, nil); !errors.Is(err, coreerrors.ErrNotAuthorizedAdmin) {
		t.Fatalf("nil config must reject")
	}
	// Authority alone is not an admin.
	if err := RequireAdmin(authority, cfg); !errors.Is(err, coreerrors.ErrNotAuthorizedAdmin) {
		t.Fatalf("authority should not pass the admin gate")
	}
}

func TestAddRemoveAdmin(t *testing.T) {
	cfg, err := NewGlobalConfig(authority)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if _, err := AddAdmin(userB, cfg, adminA); !errors.Is(err, coreerrors.ErrNotAuthority) {
		t.Fatalf("expected not-authority, got %v", err)
	}
	for i := byte(1); i <= MaxAdmins; i++ {
		cfg, err = AddAdmin(authority, cfg, newTestAddress(0x40+i))
		if err != nil {
			t.Fatalf("add admin %d: %v", i, err)
		}
	}
	if _, err := AddAdmin(authority, cfg, newTestAddress(0x41)); !errors.Is(err, coreerrors.ErrAlreadyAuthorizedAdmin) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := AddAdmin(authority, cfg, newTestAddress(0x50)); !errors.Is(err, coreerrors.ErrAdminLimitReached) {
		t.Fatalf("expected limit, got %v", err)
	}
	if len(cfg.Admins) != MaxAdmins {
		t.Fatalf("expected %d admins, got %d", MaxAdmins, len(cfg.Admins))
	}
	next, err := RemoveAdmin(authority, cfg, newTestAddress(0x43))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if next.IsAdmin(newTestAddress(0x43)) || !cfg.IsAdmin(newTestAddress(0x43)) {
		t.Fatalf("remove must return a modified copy only")
	}
	if _, err := RemoveAdmin(authority, next, newTestAddress(0x43)); !errors.Is(err, coreerrors.ErrNotAuthorizedAdmin) {
		t.Fatalf("expected NotAuthorizedAdmin, got %v", err)
	}
}

func TestAdminsSorted(t *testing.T) {
	cfg, _ := NewGlobalConfig(authority)
	cfg, _ = AddAdmin(authority, cfg, newTestAddress(0x09))
	cfg, _ = AddAdmin(authority, cfg, newTestAddress(0x01))
	if cfg.Admins[0] != newTestAddress(0x01) {
		t.Fatalf("admins not sorted: %x", cfg.Admins)
	}
}
