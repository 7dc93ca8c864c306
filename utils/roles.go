package utils

import "github.com/checkauto/checkauto-api/models"

// roleLevel maps roles to privilege levels, lowest number = most privilege.
var roleLevel = map[string]int{
	models.RoleAdmin:    0,
	models.RoleManager:  1,
	models.RoleOperator: 2,
}

// CanManageCatalog reports whether the role may create or edit stages and
// photo requirements.
func CanManageCatalog(role string) bool {
	level, ok := roleLevel[role]
	return ok && level <= roleLevel[models.RoleManager]
}

// CanManageMembers reports whether the role may manage tenant memberships.
func CanManageMembers(role string) bool {
	level, ok := roleLevel[role]
	return ok && level == roleLevel[models.RoleAdmin]
}

// IsKnownRole reports whether the string is one of the three membership roles.
func IsKnownRole(role string) bool {
	_, ok := roleLevel[role]
	return ok
}
