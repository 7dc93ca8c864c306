package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

// SyncBatch receives the PWA's offline queue and merges it. The response
// carries one result row per item plus the tenant's refreshed open orders so
// the client can rebuild its local cache in one round trip.
func SyncBatch(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	_, _, _, sync := services()
	tenant, err := sync.ResolveTenant(claims.UserUUID(), claims.IsSuperuser)
	if err != nil {
		if errors.Is(err, ErrNoTenantResolved) {
			writeDetail(w, http.StatusBadRequest, "Usuário não está vinculado a nenhuma oficina ativa.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	results := sync.Process(r.Context(), tenant, claims.UserUUID(), req)

	var orders []models.WorkOrder
	config.DB.Preload("CurrentStage").
		Where("tenant_id = ? AND open = ?", tenant.ID, true).
		Order("created_at DESC").Find(&orders)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"os":      orders,
	})
}
