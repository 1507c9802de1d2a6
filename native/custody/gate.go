package custody

import (
	"fmt"

	coreerrors "sktvault/core/errors"
)

// RequireAdmin is a pure membership test over cfg.Admins.
func RequireAdmin(caller [20]byte, cfg *GlobalConfig) error {
	if cfg == nil || !cfg.IsAdmin(caller) {
		return coreerrors.ErrNotAuthorizedAdmin
	}
	return nil
}

// RequireAuthority checks that caller is the configuration authority.
func RequireAuthority(caller [20]byte, cfg *GlobalConfig) error {
	if cfg == nil || cfg.Authority != caller {
		return coreerrors.ErrNotAuthority
	}
	return nil
}

// NewGlobalConfig returns an empty configuration owned by authority.
func NewGlobalConfig(authority [20]byte) (*GlobalConfig, error) {
	if authority == ([20]byte{}) {
		return nil, fmt.Errorf("custody: authority must not be zero: %w", coreerrors.ErrCustom)
	}
	return &GlobalConfig{Authority: authority}, nil
}

// AddAdmin returns a copy of cfg with admin added. Only the authority may
// call it.
func AddAdmin(caller [20]byte, cfg *GlobalConfig, admin [20]byte) (*GlobalConfig, error) {
	if err := RequireAuthority(caller, cfg); err != nil {
		return nil, err
	}
	if admin == ([20]byte{}) {
		return nil, fmt.Errorf("custody: admin must not be zero: %w", coreerrors.ErrCustom)
	}
	if cfg.IsAdmin(admin) {
		return nil, coreerrors.ErrAlreadyAuthorizedAdmin
	}
	if len(cfg.Admins) >= MaxAdmins {
		return nil, coreerrors.ErrAdminLimitReached
	}
	next := cfg.Clone()
	next.Admins = append(next.Admins, admin)
	sortAdmins(next.Admins)
	return next, nil
}

// RemoveAdmin returns a copy of cfg without admin. Only the authority may
// call it.
func RemoveAdmin(caller [20]byte, cfg *GlobalConfig, admin [20]byte) (*GlobalConfig, error) {
	if err := RequireAuthority(caller, cfg); err != nil {
		return nil, err
	}
	if !cfg.IsAdmin(admin) {
		return nil, coreerrors.ErrNotAuthorizedAdmin
	}
	next := &GlobalConfig{Authority: cfg.Authority}
	for _, existing := range cfg.Admins {
		if existing != admin {
			next.Admins = append(next.Admins, existing)
		}
	}
	return next, nil
}
