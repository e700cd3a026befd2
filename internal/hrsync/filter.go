package hrsync

import "log/slog"

// ScopeFilter decides whether a decoded event concerns this service's domain
// scope. It is pure; the only side effect is diagnostic logging.
type ScopeFilter struct {
	scope  string
	logger *slog.Logger
}

func NewScopeFilter(scope string, logger *slog.Logger) *ScopeFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeFilter{scope: scope, logger: logger}
}

// syncedKinds is the closed allow-list of event kinds the reconciliation
// pipeline reacts to. USER_LOGIN is announced by the origin system but never
// mirrored.
var syncedKinds = map[EventKind]bool{
	EventUserCreated:       true,
	EventUserUpdated:       true,
	EventUserDeleted:       true,
	EventEnterpriseCreated: true,
	EventEnterpriseUpdated: true,
	EventEnterpriseDeleted: true,
}

// Applicable reports whether the event should be applied locally: the kind is
// on the allow-list and either the event scope or, for updates, the override
// update scope matches the domain scope.
func (f *ScopeFilter) Applicable(ev *UpdateEvent) bool {
	if !syncedKinds[ev.Kind] {
		f.logger.Debug("ignoring event outside sync allow-list",
			"event", string(ev.Kind), "origin", ev.Origin)
		return false
	}
	if ev.EventScope == f.scope || ev.UpdateScope == f.scope {
		return true
	}
	f.logger.Debug("ignoring event for foreign scope",
		"event", string(ev.Kind),
		"event_scope", ev.EventScope,
		"update_scope", ev.UpdateScope)
	return false
}
