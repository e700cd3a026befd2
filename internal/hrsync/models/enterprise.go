package models

// Enterprise is a mirrored tenant record. Users, roles, and scopes hang off
// an enterprise by id.
type Enterprise struct {
	ID               int64
	Name             string
	AccountableEmail string
	ActivityType     string
}
