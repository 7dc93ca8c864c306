package handlers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/models"
	"github.com/checkauto/checkauto-api/pkg/storage"
)

// testDB opens a fresh in-memory database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := config.Migrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func makeTenant(t *testing.T, db *gorm.DB) *models.Tenant {
	t.Helper()
	tenant := models.Tenant{Name: "Oficina Teste", Active: true}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return &tenant
}

// makePipeline seeds a three-stage flow: Check-in (flagged), Funilaria,
// Entrega.
func makePipeline(t *testing.T, db *gorm.DB, tenantID uuid.UUID) []models.Stage {
	t.Helper()
	stages := []models.Stage{
		{TenantID: tenantID, Name: "Check-in", SortOrder: 1, IsCheckin: true, ShowOnDashboard: true, Active: true},
		{TenantID: tenantID, Name: "Funilaria", SortOrder: 2, ShowOnDashboard: true, Active: true},
		{TenantID: tenantID, Name: "Entrega", SortOrder: 3, ShowOnDashboard: true, Active: true},
	}
	for i := range stages {
		if err := db.Create(&stages[i]).Error; err != nil {
			t.Fatalf("create stage %s: %v", stages[i].Name, err)
		}
	}
	return stages
}

func makeWorkOrder(t *testing.T, db *gorm.DB, tenantID uuid.UUID, code string, stageID *uuid.UUID) *models.WorkOrder {
	t.Helper()
	model := "Gol"
	plate := "ABC1D23"
	order := models.WorkOrder{
		TenantID:       tenantID,
		Code:           code,
		Plate:          &plate,
		VehicleModel:   &model,
		CurrentStageID: stageID,
		Open:           true,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return &order
}

func makeRequirement(t *testing.T, db *gorm.DB, tenantID, stageID uuid.UUID, name string, mandatory bool) *models.PhotoRequirement {
	t.Helper()
	req := models.PhotoRequirement{
		TenantID:  tenantID,
		StageID:   stageID,
		Name:      name,
		Mandatory: mandatory,
		SortOrder: 1,
		Active:    true,
	}
	if err := db.Create(&req).Error; err != nil {
		t.Fatalf("create requirement %s: %v", name, err)
	}
	return &req
}

func makeStandardPhoto(t *testing.T, db *gorm.DB, orderID, stageID, requirementID uuid.UUID) *models.Photo {
	t.Helper()
	photo := models.Photo{
		WorkOrderID:   orderID,
		StageID:       &stageID,
		Type:          models.PhotoStandard,
		RequirementID: &requirementID,
		FilePath:      "/tmp/none.jpg",
	}
	if err := db.Create(&photo).Error; err != nil {
		t.Fatalf("create photo: %v", err)
	}
	return &photo
}

func makeStorageConfig(t *testing.T, db *gorm.DB, tenantID uuid.UUID) *models.TenantStorageConfig {
	t.Helper()
	cfg := models.TenantStorageConfig{
		TenantID:     tenantID,
		Provider:     models.ProviderDrive,
		RootFolderID: "root",
		Active:       true,
	}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("create storage config: %v", err)
	}
	return &cfg
}

// fakeStorage is an in-memory RemoteStorage with call counters and failure
// switches.
type fakeStorage struct {
	mu      sync.Mutex
	folders map[string][]storage.Folder
	files   map[string][]string
	nextID  int

	listCalls   int
	createCalls int
	uploadCalls int

	failList   bool
	failCreate bool
	failUpload bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		folders: map[string][]storage.Folder{},
		files:   map[string][]string{},
	}
}

func (f *fakeStorage) connect(ctx context.Context, cfg storage.Config) (storage.RemoteStorage, error) {
	return f, nil
}

func (f *fakeStorage) ListFolders(ctx context.Context, parentID, name string) ([]storage.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList {
		return nil, fmt.Errorf("list failed")
	}
	var out []storage.Folder
	for _, folder := range f.folders[parentID] {
		if folder.Name == name {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeStorage) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate {
		return "", fmt.Errorf("create failed")
	}
	f.nextID++
	id := fmt.Sprintf("folder-%d", f.nextID)
	f.folders[parentID] = append(f.folders[parentID], storage.Folder{ID: id, Name: name})
	return id, nil
}

func (f *fakeStorage) UploadFile(ctx context.Context, parentID, localPath, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.failUpload {
		return "", fmt.Errorf("upload failed")
	}
	f.nextID++
	id := fmt.Sprintf("file-%d", f.nextID)
	f.files[parentID] = append(f.files[parentID], filename)
	return id, nil
}

// addRemoteFolder pre-seeds a folder, for duplicate-adoption tests.
func (f *fakeStorage) addRemoteFolder(parentID string, folder storage.Folder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[parentID] = append(f.folders[parentID], folder)
}

func (f *fakeStorage) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}
