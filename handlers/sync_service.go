package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/checkauto/checkauto-api/logger"
	"github.com/checkauto/checkauto-api/models"
)

// ErrNoTenantResolved aborts a whole sync batch before any item runs.
var ErrNoTenantResolved = errors.New("no tenant resolved for sync")

// Item statuses in sync results.
const (
	SyncCreated = "created"
	SyncUpdated = "updated"
	SyncSkipped = "skipped"
	SyncError   = "error"
)

// SyncRequest is the offline batch the PWA pushes when it gets back online.
type SyncRequest struct {
	Pending []SyncItem `json:"osPendentes"`
}

// SyncItem is one offline-created work order with its nested data and photos.
type SyncItem struct {
	LocalID string          `json:"local_id"`
	ID      string          `json:"id"`
	OS      SyncOSData      `json:"os"`
	Vehicle SyncVehicleData `json:"veiculo"`
	Client  SyncClientData  `json:"cliente"`
	Photos  SyncPhotoGroups `json:"fotos"`
}

type SyncOSData struct {
	InternalNumber string     `json:"numeroInterno"`
	Notes          string     `json:"observacoes"`
	CurrentStage   *uuid.UUID `json:"etapa_atual"`
	// Older PWA builds send the stage in camelCase.
	CurrentStageAlt *uuid.UUID `json:"etapaAtual"`
}

type SyncVehicleData struct {
	Plate string `json:"placa"`
	Model string `json:"modelo"`
	Color string `json:"cor"`
}

type SyncClientData struct {
	Name  string `json:"nome"`
	Phone string `json:"telefone"`
}

type SyncPhotoGroups struct {
	Standard []SyncPhoto `json:"padrao"`
	Free     []SyncPhoto `json:"livres"`
}

// SyncPhoto is one photo entry. Older PWA builds send the content under
// different keys and shapes, hence FileField.
type SyncPhoto struct {
	LocalID       string          `json:"local_id"`
	ID            string          `json:"id"`
	File          FileField       `json:"arquivo"`
	DataURL       string          `json:"dataUrl"`
	Extension     string          `json:"extensao"`
	Name          string          `json:"nome"`
	RequirementID *uuid.UUID      `json:"config_foto_id"`
	Requirement   json.RawMessage `json:"config_foto"`
}

// FileField decodes a photo content field that is either a plain string or an
// object carrying dataUrl/arquivo.
type FileField string

func (f *FileField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FileField(s)
		return nil
	}
	var obj struct {
		DataURL string `json:"dataUrl"`
		File    string `json:"arquivo"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.DataURL != "" {
		*f = FileField(obj.DataURL)
	} else {
		*f = FileField(obj.File)
	}
	return nil
}

// payload returns the photo's base64/data-URL content, whichever key it came
// under.
func (p *SyncPhoto) payload() string {
	if p.File != "" {
		return string(p.File)
	}
	return p.DataURL
}

// localID returns the client-side identifier, whichever key it came under.
func (p *SyncPhoto) localID() string {
	if p.LocalID != "" {
		return p.LocalID
	}
	return p.ID
}

// requirementID resolves the slot reference, accepting the plain id field or
// an embedded requirement object.
func (p *SyncPhoto) requirementID() *uuid.UUID {
	if p.RequirementID != nil {
		return p.RequirementID
	}
	if len(p.Requirement) == 0 {
		return nil
	}
	var obj struct {
		ID *uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(p.Requirement, &obj); err == nil && obj.ID != nil {
		return obj.ID
	}
	var id uuid.UUID
	if err := json.Unmarshal(p.Requirement, &id); err == nil && id != uuid.Nil {
		return &id
	}
	return nil
}

// SyncResult is the per-item outcome reported back to the client.
type SyncResult struct {
	LocalID     string            `json:"local_id"`
	Status      string            `json:"status"`
	WorkOrderID *uuid.UUID        `json:"os_id"`
	Errors      map[string]string `json:"errors"`
	PhotoErrors []string          `json:"photo_errors"`
}

// workOrderDraft is the normalized flat form of a sync item. Core logic only
// ever sees this, never the raw nested payload.
type workOrderDraft struct {
	Code         string
	Plate        string
	VehicleModel string
	VehicleColor string
	ClientName   string
	ClientPhone  string
	Notes        string
	StageID      *uuid.UUID
}

// SyncService merges offline batches into server state exactly once, even
// under at-least-once client retry.
type SyncService struct {
	db     *gorm.DB
	photos *PhotoService
	mirror *Mirror
	log    *zap.Logger
}

func NewSyncService(db *gorm.DB, photos *PhotoService, mirror *Mirror) *SyncService {
	return &SyncService{db: db, photos: photos, mirror: mirror, log: logger.L()}
}

// ResolveTenant picks the acting tenant for the batch: the user's home
// tenant, or for a superuser without one, the first tenant on record.
func (s *SyncService) ResolveTenant(userID uuid.UUID, isSuperuser bool) (*models.Tenant, error) {
	tenant, err := models.HomeTenant(s.db, userID)
	if err != nil {
		return nil, err
	}
	if tenant == nil && isSuperuser {
		var first models.Tenant
		err := s.db.Order("id").First(&first).Error
		if err == nil {
			tenant = &first
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if tenant == nil {
		return nil, ErrNoTenantResolved
	}
	return tenant, nil
}

// Process runs the whole batch for the tenant. Item failures are isolated;
// only the tenant precondition (checked by the caller via ResolveTenant)
// aborts a batch.
func (s *SyncService) Process(ctx context.Context, tenant *models.Tenant, userID uuid.UUID, req SyncRequest) []SyncResult {
	results := make([]SyncResult, 0, len(req.Pending))
	for _, item := range req.Pending {
		results = append(results, s.processItem(ctx, tenant, userID, item))
	}
	return results
}

func (s *SyncService) processItem(ctx context.Context, tenant *models.Tenant, userID uuid.UUID, item SyncItem) SyncResult {
	localID := item.LocalID
	if localID == "" {
		localID = item.ID
	}
	result := SyncResult{
		LocalID:     localID,
		Errors:      map[string]string{},
		PhotoErrors: []string{},
	}

	draft, fieldErrors := s.normalize(tenant, item)
	if len(fieldErrors) > 0 {
		result.Status = SyncError
		result.Errors = fieldErrors
		return result
	}

	order, status, err := s.upsertWorkOrder(tenant, draft)
	if err != nil {
		result.Status = SyncError
		result.Errors["detail"] = err.Error()
		return result
	}
	result.Status = status
	result.WorkOrderID = &order.ID

	// Lock released; remote calls happen outside the transaction.
	s.mirror.EnsureWorkOrderFolder(ctx, order)

	result.PhotoErrors = s.mergePhotos(ctx, tenant, userID, order, item)
	return result
}

// normalize flattens the nested payload into a draft, applying the code
// fallback chain and the default stage.
func (s *SyncService) normalize(tenant *models.Tenant, item SyncItem) (workOrderDraft, map[string]string) {
	fieldErrors := map[string]string{}

	model := strings.TrimSpace(item.Vehicle.Model)
	if model == "" {
		fieldErrors["modelo_veiculo"] = "Modelo do veículo não pode ser vazio."
		return workOrderDraft{}, fieldErrors
	}

	code := strings.TrimSpace(item.OS.InternalNumber)
	if code == "" {
		code = strings.TrimSpace(item.Vehicle.Plate)
	}
	if code == "" {
		code = "PWA-" + time.Now().Format("20060102150405")
	}

	stageID := item.OS.CurrentStage
	if stageID == nil {
		stageID = item.OS.CurrentStageAlt
	}
	if stageID == nil {
		stage, err := models.FirstActiveStage(s.db, tenant.ID)
		if err != nil {
			fieldErrors["etapa_atual"] = err.Error()
			return workOrderDraft{}, fieldErrors
		}
		if stage != nil {
			stageID = &stage.ID
			s.log.Info("sync item without stage, using tenant's first active stage",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("os_codigo", code),
				zap.String("stage_id", stage.ID.String()))
		} else {
			s.log.Warn("sync item without stage and tenant has no active stages",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("os_codigo", code))
		}
	}

	return workOrderDraft{
		Code:         code,
		Plate:        strings.TrimSpace(item.Vehicle.Plate),
		VehicleModel: model,
		VehicleColor: strings.TrimSpace(item.Vehicle.Color),
		ClientName:   strings.TrimSpace(item.Client.Name),
		ClientPhone:  strings.TrimSpace(item.Client.Phone),
		Notes:        strings.TrimSpace(item.OS.Notes),
		StageID:      stageID,
	}, nil
}

// upsertWorkOrder creates or partially updates the (tenant, code) work order
// under a row lock. Updated only counts when some field actually changed.
func (s *SyncService) upsertWorkOrder(tenant *models.Tenant, draft workOrderDraft) (*models.WorkOrder, string, error) {
	var (
		order  *models.WorkOrder
		status string
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var existing models.WorkOrder
		err := q.Where("tenant_id = ? AND code = ?", tenant.ID, draft.Code).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now()
			created := models.WorkOrder{
				TenantID:       tenant.ID,
				Code:           draft.Code,
				Plate:          optional(draft.Plate),
				VehicleModel:   optional(draft.VehicleModel),
				VehicleColor:   optional(draft.VehicleColor),
				CustomerName:   optional(draft.ClientName),
				CustomerPhone:  optional(draft.ClientPhone),
				Notes:          optional(draft.Notes),
				CurrentStageID: draft.StageID,
				EntryDate:      &now,
				Open:           true,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			order = &created
			status = SyncCreated
			return nil
		case err != nil:
			return err
		}

		changed := applyDraft(&existing, draft)
		if changed {
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			status = SyncUpdated
		} else {
			status = SyncSkipped
		}
		order = &existing
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return order, status, nil
}

// applyDraft applies the draft's non-empty fields onto the work order and
// reports whether anything changed. The entry date is left alone on resubmit
// so an identical batch comes back as skipped.
func applyDraft(order *models.WorkOrder, draft workOrderDraft) bool {
	changed := false
	setString := func(dst **string, value string) {
		if value == "" {
			return
		}
		if *dst == nil || **dst != value {
			*dst = &value
			changed = true
		}
	}
	setString(&order.Plate, draft.Plate)
	setString(&order.VehicleModel, draft.VehicleModel)
	setString(&order.VehicleColor, draft.VehicleColor)
	setString(&order.CustomerName, draft.ClientName)
	setString(&order.CustomerPhone, draft.ClientPhone)
	setString(&order.Notes, draft.Notes)

	if draft.StageID != nil {
		if order.CurrentStageID == nil || *order.CurrentStageID != *draft.StageID {
			order.CurrentStageID = draft.StageID
			changed = true
		}
	}
	if !order.Open {
		order.Open = true
		changed = true
	}
	return changed
}

// mergePhotos stores the item's photos, deduplicating against both this
// batch's accepted photos and what the work order already has on disk.
func (s *SyncService) mergePhotos(ctx context.Context, tenant *models.Tenant, userID uuid.UUID, order *models.WorkOrder, item SyncItem) []string {
	photoErrors := []string{}

	all := make([]SyncPhoto, 0, len(item.Photos.Standard)+len(item.Photos.Free))
	all = append(all, item.Photos.Standard...)
	all = append(all, item.Photos.Free...)
	if len(all) == 0 {
		return photoErrors
	}

	stage, err := s.targetStage(order)
	if err != nil {
		photoErrors = append(photoErrors, err.Error())
		return photoErrors
	}
	if stage == nil {
		message := "Sem etapas cadastradas para a oficina. Fotos ignoradas."
		s.log.Warn("sync photos skipped, no stages configured",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("os_codigo", order.Code))
		photoErrors = append(photoErrors, message)
		return photoErrors
	}

	membership, err := models.ActiveMembership(s.db, userID, tenant.ID)
	if err != nil {
		s.log.Warn("resolve membership for sync photos", zap.Error(err))
	}
	var takenBy *uuid.UUID
	if membership != nil {
		takenBy = &membership.ID
	}

	seen := s.existingSignatures(order)
	hasStorage := s.mirror.HasActiveConfig(tenant.ID)

	for idx, entry := range all {
		signature := photoSignature(&entry)
		if signature != "" {
			if _, dup := seen[signature]; dup {
				photoErrors = append(photoErrors, "Foto ignorada: já existente para esta OS.")
				continue
			}
		}

		input := PhotoInput{
			Payload:       entry.payload(),
			Extension:     entry.Extension,
			Title:         optional(entry.Name),
			StageID:       &stage.ID,
			RequirementID: entry.requirementID(),
			TakenBy:       takenBy,
			LocalID:       entry.localID(),
		}
		photo, err := s.photos.CreatePhoto(order, input)
		if err != nil {
			photoErrors = append(photoErrors, fmt.Sprintf("Foto %d ignorada: %s", idx, photoErrorMessage(err)))
			continue
		}
		if signature != "" {
			seen[signature] = struct{}{}
		}

		if fileID := s.mirror.UploadPhoto(ctx, photo); fileID == "" && hasStorage {
			photoErrors = append(photoErrors, fmt.Sprintf("Falha ao enviar foto %d para o storage remoto.", idx))
		}
	}
	return photoErrors
}

// targetStage picks where synced photos land: the work order's current
// stage, else the tenant's check-in stage, else its first active stage.
func (s *SyncService) targetStage(order *models.WorkOrder) (*models.Stage, error) {
	if order.CurrentStageID != nil {
		var stage models.Stage
		err := s.db.First(&stage, "id = ?", *order.CurrentStageID).Error
		if err == nil {
			return &stage, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	stage, err := models.CheckinStage(s.db, order.TenantID)
	if err != nil {
		return nil, err
	}
	if stage != nil {
		return stage, nil
	}
	return models.FirstActiveStage(s.db, order.TenantID)
}

// photoSignature is the dedup key for one entry: the client's local id when
// present, otherwise a hash of the decoded content (raw payload bytes when
// decoding fails).
func photoSignature(entry *SyncPhoto) string {
	if id := entry.localID(); id != "" {
		return "local_id:" + id
	}

	payload := entry.payload()
	if payload == "" {
		return ""
	}
	stripped := payload
	if idx := strings.Index(stripped, ","); idx >= 0 {
		stripped = stripped[idx+1:]
	}
	content, err := base64.StdEncoding.DecodeString(stripped)
	if err != nil {
		content = []byte(payload)
	}
	digest := sha256.Sum256(content)
	return "hash:" + hex.EncodeToString(digest[:])
}

// existingSignatures collects the client local ids and the content hashes of
// every photo already stored for the work order. Unreadable files still
// contribute their local id so a resubmit cannot duplicate them.
func (s *SyncService) existingSignatures(order *models.WorkOrder) map[string]struct{} {
	signatures := map[string]struct{}{}

	var photos []models.Photo
	if err := s.db.Where("work_order_id = ?", order.ID).Find(&photos).Error; err != nil {
		s.log.Warn("list photos for dedup",
			zap.String("os_id", order.ID.String()), zap.Error(err))
		return signatures
	}
	for _, photo := range photos {
		if photo.LocalID != "" {
			signatures["local_id:"+photo.LocalID] = struct{}{}
		}
		content, err := os.ReadFile(photo.FilePath)
		if err != nil {
			continue
		}
		digest := sha256.Sum256(content)
		signatures["hash:"+hex.EncodeToString(digest[:])] = struct{}{}
	}
	return signatures
}

// photoErrorMessage keeps per-photo errors short and user-readable.
func photoErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyPayload):
		return "sem conteúdo base64."
	case errors.Is(err, ErrInvalidEncoding):
		return "base64 inválido."
	case errors.Is(err, ErrInvalidRequirement):
		return "config_foto não encontrada para esta oficina/etapa."
	default:
		return err.Error()
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
