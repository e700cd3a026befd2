package models

import "time"

// User is a local mirror of an identity record owned by the remote human
// resources system. The id is assigned by the origin system, never locally.
// Role, scope, and enterprise are referenced by id only; back-references are
// resolved with indexed lookups at read time.
type User struct {
	ID           int64
	Username     string
	Email        string
	FullName     string
	RoleID       int64
	ScopeID      int64
	EnterpriseID int64
	CreatedAt    time.Time
}
