package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/logger"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
	"github.com/checkauto/checkauto-api/utils"
)

type tenantReq struct {
	Name    string  `json:"nome"`
	CNPJ    *string `json:"cnpj"`
	Phone   *string `json:"telefone"`
	Email   *string `json:"email"`
	Address *string `json:"endereco"`
}

// CreateTenant registers a new shop, makes the caller its ADMIN and seeds
// the default stage pipeline.
func CreateTenant(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req tenantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeDetail(w, http.StatusBadRequest, "Nome da oficina é obrigatório.")
		return
	}

	tenant := models.Tenant{
		Name:    req.Name,
		CNPJ:    req.CNPJ,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
		Active:  true,
	}
	if err := config.DB.Create(&tenant).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	membership := models.Membership{
		UserID:   claims.UserUUID(),
		TenantID: tenant.ID,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := config.DB.Create(&membership).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := config.SeedDefaultStages(config.DB, tenant.ID); err != nil {
		logger.L().Error("seed default stages",
			zap.String("tenant_id", tenant.ID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// GetMyTenant returns the caller's home tenant.
func GetMyTenant(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// UpdateTenant edits the shop's profile. ADMIN only.
func UpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageMembers); !ok {
		return
	}

	var req tenantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		tenant.Name = name
	}
	if req.CNPJ != nil {
		tenant.CNPJ = req.CNPJ
	}
	if req.Phone != nil {
		tenant.Phone = req.Phone
	}
	if req.Email != nil {
		tenant.Email = req.Email
	}
	if req.Address != nil {
		tenant.Address = req.Address
	}
	if err := config.DB.Save(tenant).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type memberReq struct {
	Email string `json:"email"`
	Role  string `json:"papel"`
}

// ListMembers returns the tenant's memberships with user data.
func ListMembers(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var members []models.Membership
	if err := config.DB.Preload("User").
		Where("tenant_id = ?", tenant.ID).
		Order("created_at").
		Find(&members).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// AddMember links an existing user (by email) to the tenant. ADMIN only.
func AddMember(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageMembers); !ok {
		return
	}

	var req memberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = models.RoleOperator
	}
	if !utils.IsKnownRole(role) {
		writeDetail(w, http.StatusBadRequest, "Papel inválido.")
		return
	}

	var user models.User
	if err := config.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "Usuário não encontrado.")
		return
	}

	membership := models.Membership{
		UserID:   user.ID,
		TenantID: tenant.ID,
		Role:     role,
		Active:   true,
	}
	if err := config.DB.Create(&membership).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			writeDetail(w, http.StatusConflict, "Usuário já vinculado a esta oficina.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

// UpdateMember changes a membership's role or active flag. ADMIN only.
func UpdateMember(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageMembers); !ok {
		return
	}

	memberID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	var membership models.Membership
	if err := config.DB.Where("id = ? AND tenant_id = ?", memberID, tenant.ID).First(&membership).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "Vínculo não encontrado.")
		return
	}

	var req struct {
		Role   *string `json:"papel"`
		Active *bool   `json:"ativo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Role != nil {
		role := strings.ToUpper(strings.TrimSpace(*req.Role))
		if !utils.IsKnownRole(role) {
			writeDetail(w, http.StatusBadRequest, "Papel inválido.")
			return
		}
		membership.Role = role
	}
	if req.Active != nil {
		membership.Active = *req.Active
	}
	if err := config.DB.Save(&membership).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}
