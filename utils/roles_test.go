package utils

import (
	"testing"

	"github.com/checkauto/checkauto-api/models"
)

func TestCanManageCatalog(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{models.RoleAdmin, true},
		{models.RoleManager, true},
		{models.RoleOperator, false},
		{"", false},
		{"SOMETHING", false},
	}
	for _, c := range cases {
		if got := CanManageCatalog(c.role); got != c.want {
			t.Errorf("CanManageCatalog(%q) = %v, want %v", c.role, got, c.want)
		}
	}
}

func TestCanManageMembers(t *testing.T) {
	if !CanManageMembers(models.RoleAdmin) {
		t.Error("admin should manage members")
	}
	if CanManageMembers(models.RoleManager) {
		t.Error("manager should not manage members")
	}
	if CanManageMembers(models.RoleOperator) {
		t.Error("operator should not manage members")
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, role := range []string{models.RoleAdmin, models.RoleManager, models.RoleOperator} {
		if !IsKnownRole(role) {
			t.Errorf("expected %q to be known", role)
		}
	}
	if IsKnownRole("FUNC") {
		t.Error("unexpected role accepted")
	}
}
