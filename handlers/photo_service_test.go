package handlers

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/checkauto/checkauto-api/models"
)

// Tiny valid PNG header plus padding, enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 24)...)

func pngDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestCreatePhotoFromDataURL(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "2001", &stages[0].ID)

	service := NewPhotoService(db, t.TempDir())
	photo, err := service.CreatePhoto(order, PhotoInput{Payload: pngDataURL(), LocalID: "cam-1"})
	if err != nil {
		t.Fatalf("create photo: %v", err)
	}
	if photo.Type != models.PhotoFree {
		t.Fatalf("expected free photo, got %s", photo.Type)
	}
	if photo.StageID == nil || *photo.StageID != stages[0].ID {
		t.Fatalf("expected check-in stage default, got %v", photo.StageID)
	}
	if !strings.HasSuffix(photo.FilePath, ".png") {
		t.Fatalf("expected png extension from the data URL, got %s", photo.FilePath)
	}

	content, err := os.ReadFile(photo.FilePath)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(content) != string(pngBytes) {
		t.Fatal("stored bytes differ from the decoded payload")
	}
}

func TestCreatePhotoSniffsExtensionFromBytes(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "2002", &stages[0].ID)

	service := NewPhotoService(db, t.TempDir())
	// Bare base64, no data-URL header, no declared extension.
	photo, err := service.CreatePhoto(order, PhotoInput{
		Payload: base64.StdEncoding.EncodeToString(pngBytes),
	})
	if err != nil {
		t.Fatalf("create photo: %v", err)
	}
	if !strings.HasSuffix(photo.FilePath, ".png") {
		t.Fatalf("expected sniffed png extension, got %s", photo.FilePath)
	}
}

func TestCreatePhotoRejectsBadBase64(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "2003", &stages[0].ID)

	service := NewPhotoService(db, t.TempDir())
	if _, err := service.CreatePhoto(order, PhotoInput{Payload: "not base64 at all!!"}); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if _, err := service.CreatePhoto(order, PhotoInput{}); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestCreatePhotoWithRequirementBecomesStandard(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	front := makeRequirement(t, db, tenant.ID, stages[0].ID, "Frente", true)
	order := makeWorkOrder(t, db, tenant.ID, "2004", &stages[0].ID)

	service := NewPhotoService(db, t.TempDir())
	photo, err := service.CreatePhoto(order, PhotoInput{
		Payload:       pngDataURL(),
		StageID:       &stages[0].ID,
		RequirementID: &front.ID,
	})
	if err != nil {
		t.Fatalf("create photo: %v", err)
	}
	if photo.Type != models.PhotoStandard {
		t.Fatalf("expected standard photo, got %s", photo.Type)
	}
	if photo.RequirementID == nil || *photo.RequirementID != front.ID {
		t.Fatalf("expected slot reference kept, got %v", photo.RequirementID)
	}
}

func TestCreatePhotoRejectsForeignRequirement(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	other := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	otherStages := makePipeline(t, db, other.ID)
	foreign := makeRequirement(t, db, other.ID, otherStages[0].ID, "Frente", true)
	order := makeWorkOrder(t, db, tenant.ID, "2005", &stages[0].ID)

	service := NewPhotoService(db, t.TempDir())
	_, err := service.CreatePhoto(order, PhotoInput{
		Payload:       pngDataURL(),
		StageID:       &stages[0].ID,
		RequirementID: &foreign.ID,
	})
	if !errors.Is(err, ErrInvalidRequirement) {
		t.Fatalf("expected ErrInvalidRequirement, got %v", err)
	}
}

func TestCreatePhotoDefaultsStageWithoutCheckin(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	// Unflag the check-in stage; the first active stage is the fallback.
	db.Model(&stages[0]).Update("is_checkin", false)
	order := makeWorkOrder(t, db, tenant.ID, "2006", nil)

	service := NewPhotoService(db, t.TempDir())
	photo, err := service.CreatePhoto(order, PhotoInput{Payload: pngDataURL()})
	if err != nil {
		t.Fatalf("create photo: %v", err)
	}
	if photo.StageID == nil || *photo.StageID != stages[0].ID {
		t.Fatalf("expected first active stage fallback, got %v", photo.StageID)
	}
}

func TestCreatePhotoWithoutAnyStage(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	order := makeWorkOrder(t, db, tenant.ID, "2007", nil)

	service := NewPhotoService(db, t.TempDir())
	if _, err := service.CreatePhoto(order, PhotoInput{Payload: pngDataURL()}); !errors.Is(err, ErrNoStageForPhoto) {
		t.Fatalf("expected ErrNoStageForPhoto, got %v", err)
	}
}

func TestPhotoTypeInvariantAtModelLevel(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	front := makeRequirement(t, db, tenant.ID, stages[0].ID, "Frente", true)
	order := makeWorkOrder(t, db, tenant.ID, "2008", &stages[0].ID)

	standard := models.Photo{
		WorkOrderID: order.ID,
		StageID:     &stages[0].ID,
		Type:        models.PhotoStandard,
		FilePath:    "/tmp/none.jpg",
	}
	if err := db.Create(&standard).Error; !errors.Is(err, models.ErrStandardNeedsRequirement) {
		t.Fatalf("expected ErrStandardNeedsRequirement, got %v", err)
	}

	free := models.Photo{
		WorkOrderID:   order.ID,
		StageID:       &stages[0].ID,
		Type:          models.PhotoFree,
		RequirementID: &front.ID,
		FilePath:      "/tmp/none.jpg",
	}
	if err := db.Create(&free).Error; !errors.Is(err, models.ErrFreeWithRequirement) {
		t.Fatalf("expected ErrFreeWithRequirement, got %v", err)
	}
}

func TestRequirementOnlyOnCheckinStage(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)

	req := models.PhotoRequirement{
		TenantID:  tenant.ID,
		StageID:   stages[1].ID,
		Name:      "Frente",
		Mandatory: true,
		SortOrder: 1,
		Active:    true,
	}
	if err := db.Create(&req).Error; !errors.Is(err, models.ErrRequirementNotCheckin) {
		t.Fatalf("expected ErrRequirementNotCheckin, got %v", err)
	}
}
