package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/models"
)

// Validation errors reported per photo. In batch contexts these are collected
// into photo_errors instead of failing the request.
var (
	ErrInvalidEncoding    = errors.New("photo payload is not valid base64")
	ErrEmptyPayload       = errors.New("photo payload is empty")
	ErrInvalidRequirement = errors.New("photo requirement does not match the work order's tenant and stage")
	ErrNoStageForPhoto    = errors.New("no stage available to attach the photo to")
)

// PhotoInput is one client-submitted photo, either raw bytes (multipart) or
// an inline base64/data-URL payload.
type PhotoInput struct {
	Raw       []byte
	Payload   string
	Extension string
	Title     *string
	Note      *string

	StageID       *uuid.UUID
	RequirementID *uuid.UUID
	TakenBy       *uuid.UUID
	LocalID       string
}

// PhotoService validates and persists photos, writing content under the
// media root.
type PhotoService struct {
	db        *gorm.DB
	mediaRoot string
}

func NewPhotoService(db *gorm.DB, mediaRoot string) *PhotoService {
	return &PhotoService{db: db, mediaRoot: mediaRoot}
}

// CreatePhoto decodes, validates and stores one photo for the work order.
// The stage defaults to the work order's check-in stage, then to its first
// active stage. A requirement reference forces the standard type and must
// belong to the same tenant and stage.
func (s *PhotoService) CreatePhoto(order *models.WorkOrder, in PhotoInput) (*models.Photo, error) {
	stage, err := s.resolveStage(order, in.StageID)
	if err != nil {
		return nil, err
	}

	photoType := models.PhotoFree
	if in.RequirementID != nil {
		photoType = models.PhotoStandard
		var req models.PhotoRequirement
		err := s.db.First(&req, "id = ?", *in.RequirementID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRequirement
		}
		if err != nil {
			return nil, err
		}
		if req.TenantID != order.TenantID || (stage != nil && req.StageID != stage.ID) {
			return nil, ErrInvalidRequirement
		}
	}

	content, header, err := decodePayload(in)
	if err != nil {
		return nil, err
	}
	ext := resolveExtension(in.Extension, header, content)

	path, err := s.writeFile(order, in.LocalID, ext, content)
	if err != nil {
		return nil, err
	}

	photo := models.Photo{
		WorkOrderID:   order.ID,
		Type:          photoType,
		RequirementID: in.RequirementID,
		FilePath:      path,
		LocalID:       in.LocalID,
		Title:         in.Title,
		Note:          in.Note,
		TakenByID:     in.TakenBy,
	}
	if stage != nil {
		photo.StageID = &stage.ID
	}
	if err := s.db.Create(&photo).Error; err != nil {
		os.Remove(path)
		return nil, err
	}
	return &photo, nil
}

func (s *PhotoService) resolveStage(order *models.WorkOrder, stageID *uuid.UUID) (*models.Stage, error) {
	if stageID != nil {
		var stage models.Stage
		err := s.db.Where("id = ? AND tenant_id = ?", *stageID, order.TenantID).First(&stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStageNotFound
		}
		if err != nil {
			return nil, err
		}
		return &stage, nil
	}

	stage, err := models.CheckinStage(s.db, order.TenantID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		stage, err = models.FirstActiveStage(s.db, order.TenantID)
		if err != nil {
			return nil, err
		}
	}
	if stage == nil {
		return nil, ErrNoStageForPhoto
	}
	return stage, nil
}

// decodePayload returns the binary content and, for data URLs, the header
// part carrying the declared MIME type.
func decodePayload(in PhotoInput) (content []byte, header string, err error) {
	if len(in.Raw) > 0 {
		return in.Raw, "", nil
	}

	payload := in.Payload
	if payload == "" {
		return nil, "", ErrEmptyPayload
	}
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			header = payload[:idx]
			payload = payload[idx+1:]
		}
	} else if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}

	content, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidEncoding
	}
	return content, header, nil
}

// resolveExtension picks the file extension: declared field first, then the
// data-URL MIME header, then the decoded byte signature, then jpg.
func resolveExtension(declared, header string, content []byte) string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(declared)), ".")
	if ext != "" {
		return ext
	}

	if header != "" {
		switch {
		case strings.Contains(header, "image/png"):
			return "png"
		case strings.Contains(header, "image/webp"):
			return "webp"
		case strings.Contains(header, "image/gif"):
			return "gif"
		case strings.Contains(header, "image/jpeg"), strings.Contains(header, "image/jpg"):
			return "jpg"
		}
	}

	switch http.DetectContentType(content) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/jpeg":
		return "jpg"
	}
	return "jpg"
}

// writeFile stores the content under the media root with a random suffix so
// concurrent uploads never collide.
func (s *PhotoService) writeFile(order *models.WorkOrder, localID, ext string, content []byte) (string, error) {
	dir := filepath.Join(s.mediaRoot, "os_fotos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	tag := localID
	if tag == "" {
		tag = "0"
	}
	name := fmt.Sprintf("os_%s_%s_%s.%s", order.Code, tag, uuid.NewString()[:8], ext)
	path := filepath.Join(dir, sanitizeFilename(name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write photo file: %w", err)
	}
	return path, nil
}

// sanitizeFilename keeps filenames filesystem- and remote-storage-safe.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}
