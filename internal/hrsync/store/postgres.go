package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"sellsync/internal/hrsync/models"
	"sellsync/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaDDL string

// PostgresStore persists the mirrored entities in PostgreSQL. Sessions map
// 1:1 onto sql.Tx so the engine's read-back verification observes its own
// uncommitted writes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the idempotent DDL for the mirrored tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", translateError(err))
	}
	return &postgresSession{tx: tx, open: true}, nil
}

type postgresSession struct {
	tx   *sql.Tx
	open bool
}

// translateError maps driver errors onto the shared sentinels. Constraint
// violations are permanent; everything else is assumed transient.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return fmt.Errorf("%s: %w", pgErr.Message, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}

func (p *postgresSession) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := p.tx.QueryRowContext(ctx, `
		SELECT id, username, email, COALESCE(full_name, ''),
		       COALESCE(role_id, 0), scope_id, enterprise_id, created_at
		FROM hr_user WHERE id = $1`, id)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName,
		&u.RoleID, &u.ScopeID, &u.EnterpriseID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

func (p *postgresSession) InsertUser(ctx context.Context, user *models.User) error {
	_, err := p.tx.ExecContext(ctx, `
		INSERT INTO hr_user (id, username, email, full_name, role_id, scope_id, enterprise_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6, $7, $8)`,
		user.ID, user.Username, user.Email, user.FullName,
		user.RoleID, user.ScopeID, user.EnterpriseID, user.CreatedAt)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (p *postgresSession) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := p.tx.ExecContext(ctx, `
		UPDATE hr_user
		SET username = $2, email = $3, full_name = NULLIF($4, ''),
		    role_id = NULLIF($5, 0), scope_id = $6, enterprise_id = $7
		WHERE id = $1`,
		user.ID, user.Username, user.Email, user.FullName,
		user.RoleID, user.ScopeID, user.EnterpriseID)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (p *postgresSession) DeleteUser(ctx context.Context, id int64) error {
	res, err := p.tx.ExecContext(ctx, `DELETE FROM hr_user WHERE id = $1`, id)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (p *postgresSession) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	return p.scanRole(p.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), hierarchy, enterprise_id
		FROM hr_role WHERE id = $1`, id), fmt.Sprintf("role %d", id))
}

func (p *postgresSession) FindRoleByName(ctx context.Context, enterpriseID int64, name string) (*models.Role, error) {
	return p.scanRole(p.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), hierarchy, enterprise_id
		FROM hr_role WHERE enterprise_id = $1 AND name = $2`, enterpriseID, name),
		fmt.Sprintf("role %q in enterprise %d", name, enterpriseID))
}

func (p *postgresSession) scanRole(row *sql.Row, what string) (*models.Role, error) {
	var r models.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Hierarchy, &r.EnterpriseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &r, nil
}

func (p *postgresSession) GetScope(ctx context.Context, id int64) (*models.Scope, error) {
	return p.scanScope(p.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), enterprise_id
		FROM hr_scope WHERE id = $1`, id), fmt.Sprintf("scope %d", id))
}

func (p *postgresSession) FindScopeByName(ctx context.Context, enterpriseID int64, name string) (*models.Scope, error) {
	return p.scanScope(p.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), enterprise_id
		FROM hr_scope WHERE enterprise_id = $1 AND name = $2`, enterpriseID, name),
		fmt.Sprintf("scope %q in enterprise %d", name, enterpriseID))
}

func (p *postgresSession) scanScope(row *sql.Row, what string) (*models.Scope, error) {
	var sc models.Scope
	err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.EnterpriseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &sc, nil
}

func (p *postgresSession) GetEnterprise(ctx context.Context, id int64) (*models.Enterprise, error) {
	row := p.tx.QueryRowContext(ctx, `
		SELECT id, name, accountable_email, activity_type
		FROM hr_enterprise WHERE id = $1`, id)
	var e models.Enterprise
	err := row.Scan(&e.ID, &e.Name, &e.AccountableEmail, &e.ActivityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("enterprise %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &e, nil
}

func (p *postgresSession) Commit(ctx context.Context) error {
	_ = ctx
	p.open = false
	if err := p.tx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

func (p *postgresSession) Rollback(ctx context.Context) error {
	_ = ctx
	p.open = false
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return translateError(err)
	}
	return nil
}

func (p *postgresSession) Open() bool { return p.open }

func (p *postgresSession) Close() error {
	if !p.open {
		return nil
	}
	p.open = false
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return translateError(err)
	}
	return nil
}
