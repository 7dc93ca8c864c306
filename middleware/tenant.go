package middleware

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/models"
)

// RequireTenant resolves the caller's home tenant and writes a 400 when none
// exists. Core code always receives the tenant explicitly; nothing below the
// handlers reads request state.
func RequireTenant(db *gorm.DB, w http.ResponseWriter, r *http.Request) (*models.Tenant, *Claims, bool) {
	claims := GetClaims(r)
	if claims == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return nil, nil, false
	}

	tenant, err := models.HomeTenant(db, claims.UserUUID())
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return nil, nil, false
	}
	if tenant == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": "Usuário não está vinculado a nenhuma oficina ativa.",
		})
		return nil, nil, false
	}
	return tenant, claims, true
}

// RequireRole loads the caller's membership in the tenant and checks it with
// the given predicate. Superusers pass without a membership.
func RequireRole(db *gorm.DB, w http.ResponseWriter, r *http.Request, tenant *models.Tenant, allowed func(role string) bool) (*models.Membership, bool) {
	claims := GetClaims(r)
	if claims == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return nil, false
	}
	if claims.IsSuperuser {
		return nil, true
	}

	membership, err := models.ActiveMembership(db, claims.UserUUID(), tenant.ID)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if membership == nil || !allowed(membership.Role) {
		http.Error(w, "insufficient role for this operation", http.StatusForbidden)
		return nil, false
	}
	return membership, true
}
