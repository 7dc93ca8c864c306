package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

type advanceReq struct {
	Note        string     `json:"observacao"`
	OriginStage *uuid.UUID `json:"etapa_origem"`
}

// AdvanceWorkOrder moves an OS to its next stage. Responds with the updated
// OS plus ultima_etapa, or 400 with configs_pendentes when mandatory photos
// block the move.
func AdvanceWorkOrder(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid work order id", http.StatusBadRequest)
		return
	}

	var req advanceReq
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	engine, _, _, _ := services()
	result, err := engine.AdvanceToNext(tenant.ID, orderID, strings.TrimSpace(req.Note), req.OriginStage)
	if err != nil {
		writeStageFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"os":           result.WorkOrder,
		"ultima_etapa": result.IsLastStage,
		"avancou":      result.Advanced,
	})
}

type completeReq struct {
	StageID     uuid.UUID  `json:"etapa_id"`
	CompletedAt *time.Time `json:"concluida_em"`
}

// CompleteStage marks one stage done on the OS ledger.
func CompleteStage(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid work order id", http.StatusBadRequest)
		return
	}

	var req completeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StageID == uuid.Nil {
		writeDetail(w, http.StatusBadRequest, "etapa_id é obrigatório.")
		return
	}

	engine, _, _, _ := services()
	order, err := engine.MarkCompleted(tenant.ID, orderID, req.StageID, req.CompletedAt)
	if err != nil {
		writeStageFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type reopenReq struct {
	StageID uuid.UUID `json:"etapa_id"`
}

// ReopenStage clears a stage's completion and moves the OS back when needed.
func ReopenStage(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid work order id", http.StatusBadRequest)
		return
	}

	var req reopenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StageID == uuid.Nil {
		writeDetail(w, http.StatusBadRequest, "etapa_id é obrigatório.")
		return
	}

	engine, _, _, _ := services()
	order, err := engine.Reopen(tenant.ID, orderID, req.StageID)
	if err != nil {
		writeStageFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type stageNoteReq struct {
	StageID uuid.UUID `json:"etapa_id"`
	Text    string    `json:"texto"`
}

// UpsertStageNote writes the single per-stage note on an OS, replacing any
// previous text.
func UpsertStageNote(w http.ResponseWriter, r *http.Request) {
	tenant, claims, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid work order id", http.StatusBadRequest)
		return
	}

	var req stageNoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StageID == uuid.Nil || strings.TrimSpace(req.Text) == "" {
		writeDetail(w, http.StatusBadRequest, "etapa_id e texto são obrigatórios.")
		return
	}

	var createdBy *uuid.UUID
	if m, err := models.ActiveMembership(config.DB, claims.UserUUID(), tenant.ID); err == nil && m != nil {
		createdBy = &m.ID
	}

	engine, _, _, _ := services()
	note, err := engine.UpsertStageNote(tenant.ID, orderID, req.StageID, strings.TrimSpace(req.Text), createdBy)
	if err != nil {
		writeStageFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// writeStageFlowError maps engine errors onto HTTP statuses and PT details.
func writeStageFlowError(w http.ResponseWriter, err error) {
	var pending *PendingPhotosError
	switch {
	case errors.As(err, &pending):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"detail":            "Existem fotos obrigatórias pendentes para a etapa atual.",
			"configs_pendentes": pending.RequirementIDs,
		})
	case errors.Is(err, ErrWorkOrderNotFound):
		writeDetail(w, http.StatusNotFound, "OS não encontrada.")
	case errors.Is(err, ErrStageNotFound):
		writeDetail(w, http.StatusNotFound, "Etapa não encontrada.")
	case errors.Is(err, ErrNoCurrentStage):
		writeDetail(w, http.StatusBadRequest, "OS não possui etapa atual.")
	default:
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
	}
}
