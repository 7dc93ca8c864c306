package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

type workOrderReq struct {
	Code                 *string    `json:"codigo"`
	Plate                *string    `json:"placa"`
	VehicleModel         *string    `json:"modelo_veiculo"`
	VehicleColor         *string    `json:"cor_veiculo"`
	CustomerName         *string    `json:"nome_cliente"`
	CustomerPhone        *string    `json:"telefone_cliente"`
	Notes                *string    `json:"observacoes"`
	CurrentStageID       *uuid.UUID `json:"etapa_atual"`
	EntryDate            *time.Time `json:"data_entrada"`
	ExpectedDeliveryDate *time.Time `json:"data_prevista_entrega"`
}

// CreateWorkOrder opens a new OS. The remote mirror folder is created best
// effort after the row commits.
func CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var req workOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Code == nil || strings.TrimSpace(*req.Code) == "" {
		writeDetail(w, http.StatusBadRequest, "Código da OS é obrigatório.")
		return
	}
	if req.VehicleModel == nil || strings.TrimSpace(*req.VehicleModel) == "" {
		writeDetail(w, http.StatusBadRequest, "Modelo do veículo não pode ser vazio.")
		return
	}

	stageID := req.CurrentStageID
	if stageID == nil {
		stage, err := models.FirstActiveStage(config.DB, tenant.ID)
		if err != nil {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if stage != nil {
			stageID = &stage.ID
		}
	} else if !stageBelongsToTenant(tenant.ID, *stageID) {
		writeDetail(w, http.StatusNotFound, "Etapa não encontrada.")
		return
	}

	now := time.Now()
	entry := req.EntryDate
	if entry == nil {
		entry = &now
	}

	order := models.WorkOrder{
		TenantID:             tenant.ID,
		Code:                 strings.TrimSpace(*req.Code),
		Plate:                req.Plate,
		VehicleModel:         req.VehicleModel,
		VehicleColor:         req.VehicleColor,
		CustomerName:         req.CustomerName,
		CustomerPhone:        req.CustomerPhone,
		Notes:                req.Notes,
		CurrentStageID:       stageID,
		EntryDate:            entry,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate,
		Open:                 true,
	}
	if err := config.DB.Create(&order).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			writeDetail(w, http.StatusConflict, "Já existe uma OS com este código nesta oficina.")
		} else {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	_, _, mirror, _ := services()
	mirror.EnsureWorkOrderFolder(r.Context(), &order)

	writeJSON(w, http.StatusCreated, order)
}

// ListWorkOrders returns the tenant's work orders with filters:
// ?busca= matches code, plate, model or customer; ?aberta=true|false;
// ?etapa=<stage id>.
func ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	q := config.DB.Preload("CurrentStage").Where("tenant_id = ?", tenant.ID)

	if search := strings.TrimSpace(r.URL.Query().Get("busca")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where(
			"LOWER(code) LIKE ? OR LOWER(plate) LIKE ? OR LOWER(vehicle_model) LIKE ? OR LOWER(customer_name) LIKE ?",
			like, like, like, like)
	}
	switch r.URL.Query().Get("aberta") {
	case "true":
		q = q.Where("open = ?", true)
	case "false":
		q = q.Where("open = ?", false)
	}
	if raw := r.URL.Query().Get("etapa"); raw != "" {
		stageID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid stage id", http.StatusBadRequest)
			return
		}
		q = q.Where("current_stage_id = ?", stageID)
	}

	var orders []models.WorkOrder
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetWorkOrder returns one OS with its current stage, progress ledger and
// stage notes.
func GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	order, ok := loadTenantWorkOrder(w, r, tenant)
	if !ok {
		return
	}

	var progress []models.StageProgress
	config.DB.Where("work_order_id = ?", order.ID).Find(&progress)
	var notes []models.StageNote
	config.DB.Where("work_order_id = ?", order.ID).Find(&notes)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"os":           order,
		"progresso":    progress,
		"notas_etapas": notes,
	})
}

// UpdateWorkOrder edits mutable fields of an OS. Stage transitions go
// through the advance/complete/reopen endpoints, not here.
func UpdateWorkOrder(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	order, ok := loadTenantWorkOrder(w, r, tenant)
	if !ok {
		return
	}

	var req workOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Plate != nil {
		order.Plate = req.Plate
	}
	if req.VehicleModel != nil {
		if strings.TrimSpace(*req.VehicleModel) == "" {
			writeDetail(w, http.StatusBadRequest, "Modelo do veículo não pode ser vazio.")
			return
		}
		order.VehicleModel = req.VehicleModel
	}
	if req.VehicleColor != nil {
		order.VehicleColor = req.VehicleColor
	}
	if req.CustomerName != nil {
		order.CustomerName = req.CustomerName
	}
	if req.CustomerPhone != nil {
		order.CustomerPhone = req.CustomerPhone
	}
	if req.Notes != nil {
		order.Notes = req.Notes
	}
	if req.EntryDate != nil {
		order.EntryDate = req.EntryDate
	}
	if req.ExpectedDeliveryDate != nil {
		order.ExpectedDeliveryDate = req.ExpectedDeliveryDate
	}

	if err := config.DB.Save(order).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// DashboardSummary returns per-stage open counts for stages flagged for the
// dashboard, plus totals.
func DashboardSummary(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var stages []models.Stage
	if err := config.DB.
		Where("tenant_id = ? AND active = ? AND show_on_dashboard = ?", tenant.ID, true, true).
		Order("sort_order, id").Find(&stages).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type stageCount struct {
		StageID uuid.UUID `json:"etapa_id"`
		Name    string    `json:"nome"`
		Count   int64     `json:"quantidade"`
	}
	counts := make([]stageCount, 0, len(stages))
	for _, stage := range stages {
		var n int64
		config.DB.Model(&models.WorkOrder{}).
			Where("tenant_id = ? AND open = ? AND current_stage_id = ?", tenant.ID, true, stage.ID).
			Count(&n)
		counts = append(counts, stageCount{StageID: stage.ID, Name: stage.Name, Count: n})
	}

	var open, total, todayCheckins int64
	config.DB.Model(&models.WorkOrder{}).Where("tenant_id = ? AND open = ?", tenant.ID, true).Count(&open)
	config.DB.Model(&models.WorkOrder{}).Where("tenant_id = ?", tenant.ID).Count(&total)

	config.DB.Model(&models.WorkOrder{}).
		Where("tenant_id = ? AND entry_date >= ?", tenant.ID, startOfDay(time.Now())).
		Count(&todayCheckins)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"etapas":        counts,
		"os_abertas":    open,
		"os_total":      total,
		"checkins_hoje": todayCheckins,
	})
}

// startOfDay returns midnight of t's calendar day in t's own location, so
// the "today" window follows the shop's wall clock rather than UTC.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// InProduction is the PWA board: open work orders grouped by current stage.
func InProduction(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var stages []models.Stage
	if err := config.DB.
		Where("tenant_id = ? AND active = ?", tenant.ID, true).
		Order("sort_order, id").Find(&stages).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type column struct {
		Stage models.Stage       `json:"etapa"`
		Items []models.WorkOrder `json:"itens"`
	}
	board := make([]column, 0, len(stages))
	for _, stage := range stages {
		var items []models.WorkOrder
		config.DB.
			Where("tenant_id = ? AND open = ? AND current_stage_id = ?", tenant.ID, true, stage.ID).
			Order("created_at").Find(&items)
		board = append(board, column{Stage: stage, Items: items})
	}
	writeJSON(w, http.StatusOK, board)
}

// NextStagePreview tells the client what advancing this OS would do, without
// doing it: the next stage (or none, meaning delivery) and the mandatory
// photo slots still pending.
func NextStagePreview(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	order, ok := loadTenantWorkOrder(w, r, tenant)
	if !ok {
		return
	}
	if order.CurrentStageID == nil {
		writeDetail(w, http.StatusBadRequest, "OS não possui etapa atual.")
		return
	}

	current, err := models.StageByID(config.DB, tenant.ID, *order.CurrentStageID)
	if err != nil || current == nil {
		writeDetail(w, http.StatusBadRequest, "Etapa atual não encontrada.")
		return
	}
	next, err := models.NextActiveStage(config.DB, tenant.ID, current)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	pending, err := pendingRequirements(config.DB, order, current)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"etapa_atual":       current,
		"ultima_etapa":      next == nil,
		"configs_pendentes": pending,
	}
	if next != nil {
		resp["proxima_etapa"] = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// StorageStatus reports whether the tenant has an active remote-storage
// integration and which provider.
func StorageStatus(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var cfg models.TenantStorageConfig
	err := config.DB.Where("tenant_id = ?", tenant.ID).First(&cfg).Error
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"has_storage": false,
			"active":      false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"has_storage":    true,
		"active":         cfg.Active,
		"provider":       cfg.Provider,
		"root_folder_id": cfg.RootFolderID,
	})
}

func stageBelongsToTenant(tenantID, stageID uuid.UUID) bool {
	var n int64
	config.DB.Model(&models.Stage{}).Where("id = ? AND tenant_id = ?", stageID, tenantID).Count(&n)
	return n > 0
}

// loadTenantWorkOrder resolves {id} from the route within the tenant,
// writing 400/404 itself on failure.
func loadTenantWorkOrder(w http.ResponseWriter, r *http.Request, tenant *models.Tenant) (*models.WorkOrder, bool) {
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid work order id", http.StatusBadRequest)
		return nil, false
	}
	var order models.WorkOrder
	if err := config.DB.Preload("CurrentStage").
		Where("id = ? AND tenant_id = ?", orderID, tenant.ID).First(&order).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "OS não encontrada.")
		return nil, false
	}
	return &order, true
}
