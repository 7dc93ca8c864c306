package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
	"github.com/checkauto/checkauto-api/utils"
)

type stageReq struct {
	Name            *string `json:"nome"`
	SortOrder       *int    `json:"ordem"`
	IsCheckin       *bool   `json:"is_checkin"`
	ShowOnDashboard *bool   `json:"mostrar_no_dashboard"`
	Active          *bool   `json:"ativa"`
}

// ListStages returns the tenant's stages ordered by (sort_order, id).
// ?ativas=true filters to active ones.
func ListStages(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	q := config.DB.Where("tenant_id = ?", tenant.ID)
	if r.URL.Query().Get("ativas") == "true" {
		q = q.Where("active = ?", true)
	}

	var stages []models.Stage
	if err := q.Order("sort_order, id").Find(&stages).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stages)
}

// CreateStage adds a stage to the tenant's flow. ADMIN or MANAGER.
func CreateStage(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageCatalog); !ok {
		return
	}

	var req stageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeDetail(w, http.StatusBadRequest, "Nome da etapa é obrigatório.")
		return
	}

	stage := models.Stage{
		TenantID:        tenant.ID,
		Name:            strings.TrimSpace(*req.Name),
		ShowOnDashboard: true,
		Active:          true,
	}
	if req.SortOrder != nil {
		stage.SortOrder = *req.SortOrder
	} else {
		var max int
		config.DB.Model(&models.Stage{}).Where("tenant_id = ?", tenant.ID).
			Select("COALESCE(MAX(sort_order), 0)").Scan(&max)
		stage.SortOrder = max + 1
	}
	if req.IsCheckin != nil {
		stage.IsCheckin = *req.IsCheckin
	}
	if req.ShowOnDashboard != nil {
		stage.ShowOnDashboard = *req.ShowOnDashboard
	}

	if err := config.DB.Create(&stage).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, stage)
}

// UpdateStage edits a stage. ADMIN or MANAGER.
func UpdateStage(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageCatalog); !ok {
		return
	}

	stageID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid stage id", http.StatusBadRequest)
		return
	}
	var stage models.Stage
	if err := config.DB.Where("id = ? AND tenant_id = ?", stageID, tenant.ID).First(&stage).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "Etapa não encontrada.")
		return
	}

	var req stageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		stage.Name = strings.TrimSpace(*req.Name)
	}
	if req.SortOrder != nil {
		stage.SortOrder = *req.SortOrder
	}
	if req.IsCheckin != nil {
		stage.IsCheckin = *req.IsCheckin
	}
	if req.ShowOnDashboard != nil {
		stage.ShowOnDashboard = *req.ShowOnDashboard
	}
	if req.Active != nil {
		stage.Active = *req.Active
	}

	if err := config.DB.Save(&stage).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

type requirementReq struct {
	StageID     *uuid.UUID `json:"etapa_id"`
	Name        *string    `json:"nome"`
	Description *string    `json:"descricao"`
	Mandatory   *bool      `json:"obrigatoria"`
	SortOrder   *int       `json:"ordem"`
	Active      *bool      `json:"ativa"`
}

// ListPhotoRequirements returns the tenant's photo slots, optionally
// filtered by ?etapa=<stage id>.
func ListPhotoRequirements(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	q := config.DB.Where("tenant_id = ?", tenant.ID)
	if raw := r.URL.Query().Get("etapa"); raw != "" {
		stageID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid stage id", http.StatusBadRequest)
			return
		}
		q = q.Where("stage_id = ?", stageID)
	}

	var reqs []models.PhotoRequirement
	if err := q.Order("sort_order, id").Find(&reqs).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// CreatePhotoRequirement adds a photo slot. Slots only exist on the check-in
// stage; other stages are rejected. ADMIN or MANAGER.
func CreatePhotoRequirement(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageCatalog); !ok {
		return
	}

	var req requirementReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StageID == nil || req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeDetail(w, http.StatusBadRequest, "Etapa e nome são obrigatórios.")
		return
	}

	var stage models.Stage
	if err := config.DB.Where("id = ? AND tenant_id = ?", *req.StageID, tenant.ID).First(&stage).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "Etapa não encontrada.")
		return
	}

	requirement := models.PhotoRequirement{
		TenantID:    tenant.ID,
		StageID:     stage.ID,
		Name:        strings.TrimSpace(*req.Name),
		Description: req.Description,
		Mandatory:   true,
		SortOrder:   1,
		Active:      true,
	}
	if req.Mandatory != nil {
		requirement.Mandatory = *req.Mandatory
	}
	if req.SortOrder != nil {
		requirement.SortOrder = *req.SortOrder
	}

	if err := config.DB.Create(&requirement).Error; err != nil {
		if errors.Is(err, models.ErrRequirementNotCheckin) {
			writeDetail(w, http.StatusBadRequest, "Configurações de foto só são permitidas na etapa de check-in.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, requirement)
}

// UpdatePhotoRequirement edits a photo slot. ADMIN or MANAGER.
func UpdatePhotoRequirement(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	if _, ok := middleware.RequireRole(config.DB, w, r, tenant, utils.CanManageCatalog); !ok {
		return
	}

	reqID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid requirement id", http.StatusBadRequest)
		return
	}
	var requirement models.PhotoRequirement
	if err := config.DB.Where("id = ? AND tenant_id = ?", reqID, tenant.ID).First(&requirement).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "Configuração de foto não encontrada.")
		return
	}

	var req requirementReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		requirement.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		requirement.Description = req.Description
	}
	if req.Mandatory != nil {
		requirement.Mandatory = *req.Mandatory
	}
	if req.SortOrder != nil {
		requirement.SortOrder = *req.SortOrder
	}
	if req.Active != nil {
		requirement.Active = *req.Active
	}

	if err := config.DB.Save(&requirement).Error; err != nil {
		if errors.Is(err, models.ErrRequirementNotCheckin) {
			writeDetail(w, http.StatusBadRequest, "Configurações de foto só são permitidas na etapa de check-in.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, requirement)
}
