package store

import (
	"context"

	"sellsync/internal/hrsync/models"
)

// Store hands out transactional sessions. The reconciliation engine acquires a
// fresh session per attempt and never shares one across messages.
type Store interface {
	Begin(ctx context.Context) (Session, error)
}

// Session is a single transaction over the mirrored entities. Reads observe
// writes staged in the same session. Commit makes the staged writes durable;
// Rollback discards them. Close releases the session either way and is safe to
// call after Commit or Rollback.
//
// Lookups return sentinel.ErrNotFound (wrapped) when no row matches.
type Session interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	GetRole(ctx context.Context, id int64) (*models.Role, error)
	FindRoleByName(ctx context.Context, enterpriseID int64, name string) (*models.Role, error)
	GetScope(ctx context.Context, id int64) (*models.Scope, error)
	FindScopeByName(ctx context.Context, enterpriseID int64, name string) (*models.Scope, error)
	GetEnterprise(ctx context.Context, id int64) (*models.Enterprise, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Open() bool
	Close() error
}
