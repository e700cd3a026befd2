package hrsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sellsync/internal/hrsync/models"
	"sellsync/internal/hrsync/store"
	"sellsync/pkg/platform/sentinel"
)

// Engine applies filtered events to the local User mirror. Each handler is
// idempotent with respect to redelivery of the same event and performs its
// storage work inside one session, guarded by the Retrier.
type Engine struct {
	retrier *Retrier
	scope   string
	logger  *slog.Logger
	now     func() time.Time

	// independentScopeResolution corrects the origin system's quirk where an
	// update's scope_id/scope_name are only consulted when the role was
	// resolved by name. Off by default to mirror upstream behavior until
	// product clarifies the intent.
	independentScopeResolution bool
}

type EngineOption func(*Engine)

func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithIndependentScopeResolution makes update events resolve a new scope from
// scope_id/scope_name regardless of how (or whether) the role was resolved.
func WithIndependentScopeResolution() EngineOption {
	return func(e *Engine) { e.independentScopeResolution = true }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(retrier *Retrier, scope string, opts ...EngineOption) (*Engine, error) {
	if retrier == nil {
		return nil, fmt.Errorf("retrier is required")
	}
	if scope == "" {
		return nil, fmt.Errorf("domain scope is required")
	}
	e := &Engine{
		retrier: retrier,
		scope:   scope,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Apply dispatches the event to its handler. It returns nil when the event was
// applied or permanently dropped, and a *FatalError when storage retries were
// exhausted.
func (e *Engine) Apply(ctx context.Context, ev *UpdateEvent) error {
	switch ev.Kind {
	case EventUserCreated:
		return e.createUser(ctx, ev)
	case EventUserUpdated:
		return e.updateUser(ctx, ev)
	case EventUserDeleted:
		return e.deleteUser(ctx, ev)
	case EventEnterpriseCreated, EventEnterpriseUpdated, EventEnterpriseDeleted:
		// Enterprise lifecycle is not mirrored yet. Kept as explicit cases so
		// the gap stays visible at this dispatch point.
		e.logger.Info("enterprise lifecycle events are not applied",
			"event", string(ev.Kind), "origin", ev.Origin)
		return nil
	case EventUserLogin:
		return nil
	default:
		e.logger.Warn("unhandled event kind", "event", string(ev.Kind))
		return nil
	}
}

// scopeEligible reports whether a user snapshot with the given scope name
// belongs in this service's mirror.
func (e *Engine) scopeEligible(scopeName string) bool {
	return scopeName == models.ScopeAll || scopeName == e.scope
}

// createUser inserts the denormalized snapshot as one User row. The nested
// role/scope/enterprise objects already exist remotely and are referenced by
// id, never created here. Duplicate inserts surface as conflicts, which are
// permanent: the row is already mirrored.
func (e *Engine) createUser(ctx context.Context, ev *UpdateEvent) error {
	snap := ev.Create
	if snap == nil {
		e.logger.Warn("create event without user snapshot, skipping")
		return nil
	}

	return e.retrier.Do(ctx, func(ctx context.Context, s store.Session) error {
		if snap.Role == nil || snap.Scope == nil || snap.Enterprise == nil {
			return Permanent(fmt.Errorf("user %d snapshot missing nested role/scope/enterprise", snap.ID))
		}

		user := &models.User{
			ID:           snap.ID,
			Username:     snap.Username,
			Email:        snap.Email,
			RoleID:       snap.Role.ID,
			ScopeID:      snap.Scope.ID,
			EnterpriseID: snap.Enterprise.ID,
			CreatedAt:    snap.CreatedAt.Time(),
		}
		if snap.FullName != nil {
			user.FullName = *snap.FullName
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = e.now()
		}

		if err := s.InsertUser(ctx, user); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return Permanent(fmt.Errorf("create user %s (id %d): %w", user.Username, user.ID, err))
			}
			return err
		}
		if err := s.Commit(ctx); err != nil {
			return err
		}
		e.logger.Info("mirrored new user",
			"user_id", user.ID, "username", user.Username, "enterprise_id", user.EnterpriseID)
		return nil
	})
}

// updateUser reconciles an existing mirror row against an update event.
// Upsert-or-ignore: a missing row is re-created from the embedded full user
// snapshot when its scope still qualifies. A present row whose new scope no
// longer qualifies is deleted and processing stops.
func (e *Engine) updateUser(ctx context.Context, ev *UpdateEvent) error {
	patch, full := ev.Patch, ev.FullUser
	if patch == nil || full == nil || patch.ID == 0 || patch.EnterpriseID == 0 {
		e.logger.Warn("update event missing id, enterprise_id, or embedded user; skipping")
		return nil
	}

	return e.retrier.Do(ctx, func(ctx context.Context, s store.Session) error {
		user, err := s.GetUser(ctx, patch.ID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return e.resyncUser(ctx, s, full)
		}
		if err != nil {
			return err
		}

		// A snapshot without its scope object is malformed, not a scope
		// change; only a present-but-foreign scope name evicts the mirror.
		if full.Scope == nil {
			return Permanent(fmt.Errorf("user %d snapshot missing nested scope", user.ID))
		}
		if !e.scopeEligible(full.Scope.Name) {
			e.logger.Info("user left domain scope, removing mirror",
				"user_id", user.ID, "username", user.Username)
			if err := s.DeleteUser(ctx, user.ID); err != nil {
				return err
			}
			return s.Commit(ctx)
		}

		role, scope, err := e.resolveRoleScope(ctx, s, patch)
		if err != nil {
			return err
		}
		if role != nil {
			user.RoleID = role.ID
		}
		if scope != nil {
			user.ScopeID = scope.ID
		}
		if patch.Username != nil {
			user.Username = *patch.Username
		}
		if patch.Email != nil {
			user.Email = *patch.Email
		}
		if patch.FullName != nil {
			user.FullName = *patch.FullName
		}

		if err := s.UpdateUser(ctx, user); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return Permanent(fmt.Errorf("update user %s (id %d): %w", user.Username, user.ID, err))
			}
			return err
		}

		// Read-back verification within the session; a miss here means the
		// write was silently lost and should not be committed.
		verified, err := s.GetUser(ctx, user.ID)
		if err != nil || verified == nil {
			return fmt.Errorf("post-update verification for user %d failed: %w", user.ID, err)
		}

		if err := s.Commit(ctx); err != nil {
			return err
		}
		e.logger.Info("updated mirrored user",
			"user_id", user.ID, "username", user.Username)
		return nil
	})
}

// resyncUser handles the self-healing path: an update arrived for a user this
// service never mirrored. Eligible snapshots are inserted; everything else is
// ignored.
func (e *Engine) resyncUser(ctx context.Context, s store.Session, full *UserSnapshot) error {
	if full.Scope == nil || !e.scopeEligible(full.Scope.Name) {
		e.logger.Info("update for unmirrored out-of-scope user, ignoring", "user_id", full.ID)
		return nil
	}
	if full.Role == nil || full.Enterprise == nil {
		return Permanent(fmt.Errorf("user %d snapshot missing nested role/enterprise", full.ID))
	}

	user := &models.User{
		ID:           full.ID,
		Username:     full.Username,
		Email:        full.Email,
		RoleID:       full.Role.ID,
		ScopeID:      full.Scope.ID,
		EnterpriseID: full.Enterprise.ID,
		CreatedAt:    full.CreatedAt.Time(),
	}
	if full.FullName != nil {
		user.FullName = *full.FullName
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = e.now()
	}

	if err := s.InsertUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Permanent(fmt.Errorf("resync user %d: %w", user.ID, err))
		}
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}
	e.logger.Info("re-synced missing user from snapshot",
		"user_id", user.ID, "username", user.Username)
	return nil
}

// resolveRoleScope re-resolves role and scope references from the patch: by id
// when present and non-zero, otherwise by name within the patch's enterprise.
// A reference that resolves to nothing leaves the current value untouched.
//
// Upstream only consults scope_id/scope_name inside the role-by-name branch;
// independentScopeResolution lifts that restriction.
func (e *Engine) resolveRoleScope(ctx context.Context, s store.Session, patch *UserPatch) (*models.Role, *models.Scope, error) {
	var role *models.Role
	var scope *models.Scope
	var err error

	resolveScope := func() error {
		if patch.ScopeID != nil {
			scope, err = s.GetScope(ctx, *patch.ScopeID)
		} else if patch.ScopeName != nil {
			scope, err = s.FindScopeByName(ctx, patch.EnterpriseID, *patch.ScopeName)
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return nil
	}

	switch {
	case patch.RoleID != nil && *patch.RoleID != 0:
		role, err = s.GetRole(ctx, *patch.RoleID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, err
		}
	case patch.RoleName != nil:
		role, err = s.FindRoleByName(ctx, patch.EnterpriseID, *patch.RoleName)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, err
		}
		if err := resolveScope(); err != nil {
			return nil, nil, err
		}
		return role, scope, nil
	}

	if e.independentScopeResolution && scope == nil {
		if err := resolveScope(); err != nil {
			return nil, nil, err
		}
	}
	return role, scope, nil
}

// deleteUser removes the mirror row. A second delivery of the same event finds
// nothing and is a logged no-op, keeping the handler idempotent.
func (e *Engine) deleteUser(ctx context.Context, ev *UpdateEvent) error {
	ref := ev.Delete
	if ref == nil || ref.ID == 0 {
		e.logger.Warn("delete event without user id, skipping")
		return nil
	}

	return e.retrier.Do(ctx, func(ctx context.Context, s store.Session) error {
		if _, err := s.GetUser(ctx, ref.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				e.logger.Info("user already absent, nothing to delete", "user_id", ref.ID)
				return nil
			}
			return err
		}
		if err := s.DeleteUser(ctx, ref.ID); err != nil {
			return err
		}
		if err := s.Commit(ctx); err != nil {
			return err
		}
		e.logger.Info("deleted mirrored user", "user_id", ref.ID)
		return nil
	})
}
