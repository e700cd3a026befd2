package models

// Role is a mirrored role definition, unique by (name, enterprise).
type Role struct {
	ID           int64
	Name         string
	Description  string
	Hierarchy    int
	EnterpriseID int64
}

// Default role names seeded by the origin system.
const (
	RoleOwner        = "Owner"
	RoleManager      = "Manager"
	RoleCollaborator = "Collaborator"
)

// DefaultHierarchy returns the hierarchy level for a default role name,
// or 0 when the name is not one of the defaults.
func DefaultHierarchy(name string) int {
	switch name {
	case RoleOwner:
		return 1
	case RoleManager:
		return 2
	case RoleCollaborator:
		return 3
	}
	return 0
}
