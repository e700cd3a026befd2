package models

// Scope is a mirrored business-scope definition, unique by (name, enterprise).
type Scope struct {
	ID           int64
	Name         string
	Description  string
	EnterpriseID int64
}

// Scope name sentinels defined by the origin system. This service mirrors
// users tagged with ScopeSells; ScopeAll qualifies everywhere.
const (
	ScopeAll           = "All"
	ScopeSells         = "Sells"
	ScopeHumanResource = "HumanResource"
	ScopePatrimonial   = "Patrimonial"
)
