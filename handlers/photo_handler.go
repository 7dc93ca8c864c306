package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

type photoJSONReq struct {
	WorkOrderID   uuid.UUID  `json:"os_id"`
	Payload       string     `json:"arquivo"`
	Extension     string     `json:"extensao"`
	Title         *string    `json:"titulo"`
	Note          *string    `json:"nota"`
	StageID       *uuid.UUID `json:"etapa_id"`
	RequirementID *uuid.UUID `json:"config_foto_id"`
	LocalID       string     `json:"local_id"`
}

// UploadPhoto stores one photo for an OS. JSON bodies carry base64/data-URL
// content; multipart bodies carry the file directly under "arquivo".
func UploadPhoto(w http.ResponseWriter, r *http.Request) {
	tenant, claims, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	var (
		orderID uuid.UUID
		input   PhotoInput
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		orderID, input, err = photoFromMultipart(r)
	} else {
		orderID, input, err = photoFromJSON(r)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var order models.WorkOrder
	if err := config.DB.Where("id = ? AND tenant_id = ?", orderID, tenant.ID).First(&order).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "OS não encontrada.")
		return
	}

	if m, err := models.ActiveMembership(config.DB, claims.UserUUID(), tenant.ID); err == nil && m != nil {
		input.TakenBy = &m.ID
	}

	_, photos, mirror, _ := services()
	photo, err := photos.CreatePhoto(&order, input)
	if err != nil {
		writePhotoError(w, err)
		return
	}

	mirror.UploadPhoto(r.Context(), photo)

	writeJSON(w, http.StatusCreated, photo)
}

func photoFromJSON(r *http.Request) (uuid.UUID, PhotoInput, error) {
	var req photoJSONReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return uuid.Nil, PhotoInput{}, errors.New("invalid JSON")
	}
	if req.WorkOrderID == uuid.Nil {
		return uuid.Nil, PhotoInput{}, errors.New("os_id is required")
	}
	return req.WorkOrderID, PhotoInput{
		Payload:       req.Payload,
		Extension:     req.Extension,
		Title:         req.Title,
		Note:          req.Note,
		StageID:       req.StageID,
		RequirementID: req.RequirementID,
		LocalID:       req.LocalID,
	}, nil
}

func photoFromMultipart(r *http.Request) (uuid.UUID, PhotoInput, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return uuid.Nil, PhotoInput{}, errors.New("invalid multipart form")
	}
	orderID, err := uuid.Parse(r.FormValue("os_id"))
	if err != nil {
		return uuid.Nil, PhotoInput{}, errors.New("os_id is required")
	}

	file, header, err := r.FormFile("arquivo")
	if err != nil {
		return uuid.Nil, PhotoInput{}, errors.New("arquivo is required")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return uuid.Nil, PhotoInput{}, errors.New("error reading file")
	}

	input := PhotoInput{
		Raw:       content,
		Extension: strings.TrimPrefix(filepath.Ext(header.Filename), "."),
		LocalID:   r.FormValue("local_id"),
	}
	if title := r.FormValue("titulo"); title != "" {
		input.Title = &title
	}
	if note := r.FormValue("nota"); note != "" {
		input.Note = &note
	}
	if raw := r.FormValue("etapa_id"); raw != "" {
		stageID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, PhotoInput{}, errors.New("invalid etapa_id")
		}
		input.StageID = &stageID
	}
	if raw := r.FormValue("config_foto_id"); raw != "" {
		reqID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, PhotoInput{}, errors.New("invalid config_foto_id")
		}
		input.RequirementID = &reqID
	}
	return orderID, input, nil
}

// ListPhotos returns the tenant's photos for ?os=<work order id>.
func ListPhotos(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.URL.Query().Get("os"))
	if err != nil {
		http.Error(w, "os query parameter is required", http.StatusBadRequest)
		return
	}
	var order models.WorkOrder
	if err := config.DB.Where("id = ? AND tenant_id = ?", orderID, tenant.ID).First(&order).Error; err != nil {
		writeDetail(w, http.StatusNotFound, "OS não encontrada.")
		return
	}

	var photos []models.Photo
	if err := config.DB.Where("work_order_id = ?", order.ID).
		Order("taken_at").Find(&photos).Error; err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

func writePhotoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyPayload):
		writeDetail(w, http.StatusBadRequest, "Arquivo da foto não pode ser vazio.")
	case errors.Is(err, ErrInvalidEncoding):
		writeDetail(w, http.StatusBadRequest, "Conteúdo base64 inválido.")
	case errors.Is(err, ErrInvalidRequirement):
		writeDetail(w, http.StatusBadRequest, "Configuração de foto inválida para esta OS.")
	case errors.Is(err, ErrNoStageForPhoto):
		writeDetail(w, http.StatusBadRequest, "Sem etapas cadastradas para a oficina.")
	case errors.Is(err, models.ErrStandardNeedsRequirement) || errors.Is(err, models.ErrFreeWithRequirement):
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
	}
}
