package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/checkauto/checkauto-api/models"
	"github.com/checkauto/checkauto-api/pkg/storage"
)

func TestEnsureWorkOrderFolderCreatesAndCaches(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "3001", nil)

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)

	folderID := mirror.EnsureWorkOrderFolder(context.Background(), order)
	if folderID == "" {
		t.Fatal("expected a folder id")
	}

	var fresh models.WorkOrder
	db.First(&fresh, "id = ?", order.ID)
	if fresh.DriveFolderID == nil || *fresh.DriveFolderID != folderID {
		t.Fatalf("expected folder id persisted, got %v", fresh.DriveFolderID)
	}

	// No stages configured, so only the OS folder and the free catch-all.
	if fake.createCount() != 2 {
		t.Fatalf("expected 2 folder creations, got %d", fake.createCount())
	}

	again := mirror.EnsureWorkOrderFolder(context.Background(), &fresh)
	if again != folderID {
		t.Fatalf("expected cached id %s, got %s", folderID, again)
	}
	if fake.createCount() != 2 {
		t.Fatalf("cached call must not create folders, got %d creations", fake.createCount())
	}
}

func TestEnsureWorkOrderFolderUsesDeterministicName(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "3002", nil)

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)
	mirror.EnsureWorkOrderFolder(context.Background(), order)

	want := "OS-3002 - ABC1D23 - Gol"
	found := false
	for _, folder := range fake.folders["root"] {
		if folder.Name == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected folder %q under root, got %v", want, fake.folders["root"])
	}
}

func TestEnsureWorkOrderFolderAdoptsEarliestDuplicate(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "3003", nil)

	name := order.FolderName()
	fake := newFakeStorage()
	fake.addRemoteFolder("root", storage.Folder{
		ID: "dup-new", Name: name, CreatedTime: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	fake.addRemoteFolder("root", storage.Folder{
		ID: "dup-old", Name: name, CreatedTime: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	mirror := NewMirror(db, fake.connect)
	folderID := mirror.EnsureWorkOrderFolder(context.Background(), order)
	if folderID != "dup-old" {
		t.Fatalf("expected the earliest duplicate adopted, got %s", folderID)
	}
}

func TestMirrorFailureNeverPropagates(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "3004", nil)

	fake := newFakeStorage()
	fake.failCreate = true
	mirror := NewMirror(db, fake.connect)

	if got := mirror.EnsureWorkOrderFolder(context.Background(), order); got != "" {
		t.Fatalf("expected empty result on provider failure, got %q", got)
	}

	var fresh models.WorkOrder
	db.First(&fresh, "id = ?", order.ID)
	if fresh.DriveFolderID != nil {
		t.Fatalf("failed ensure must not persist an id, got %v", fresh.DriveFolderID)
	}
}

func TestMirrorWithoutConfigIsNoop(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	order := makeWorkOrder(t, db, tenant.ID, "3005", nil)

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)

	if got := mirror.EnsureWorkOrderFolder(context.Background(), order); got != "" {
		t.Fatalf("expected empty result without config, got %q", got)
	}
	if mirror.HasActiveConfig(tenant.ID) {
		t.Fatal("expected no active config")
	}
	if fake.createCount() != 0 {
		t.Fatalf("expected no remote calls, got %d creations", fake.createCount())
	}
}

func TestUploadPhotoStandardGoesToStageFolder(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	stages := makePipeline(t, db, tenant.ID)
	front := makeRequirement(t, db, tenant.ID, stages[0].ID, "Frente", true)
	order := makeWorkOrder(t, db, tenant.ID, "3006", &stages[0].ID)
	photo := makeStandardPhoto(t, db, order.ID, stages[0].ID, front.ID)

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)

	fileID := mirror.UploadPhoto(context.Background(), photo)
	if fileID == "" {
		t.Fatal("expected a file id")
	}

	var fresh models.Photo
	db.First(&fresh, "id = ?", photo.ID)
	if fresh.DriveFileID == nil || *fresh.DriveFileID != fileID {
		t.Fatalf("expected file id persisted, got %v", fresh.DriveFileID)
	}

	// The stage subfolder is "01 - Check-in" under the OS folder.
	db.First(order, "id = ?", order.ID)
	osFolderID := *order.DriveFolderID
	var stageFolderID string
	for _, folder := range fake.folders[osFolderID] {
		if folder.Name == "01 - Check-in" {
			stageFolderID = folder.ID
		}
	}
	if stageFolderID == "" {
		t.Fatalf("stage subfolder missing under %s: %v", osFolderID, fake.folders[osFolderID])
	}
	if len(fake.files[stageFolderID]) != 1 {
		t.Fatalf("expected upload into the stage subfolder, files: %v", fake.files)
	}
}

func TestUploadPhotoFreeGoesToCatchAllFolder(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	stages := makePipeline(t, db, tenant.ID)
	order := makeWorkOrder(t, db, tenant.ID, "3007", &stages[1].ID)

	photo := models.Photo{
		WorkOrderID: order.ID,
		StageID:     &stages[1].ID,
		Type:        models.PhotoFree,
		FilePath:    "/tmp/none.jpg",
	}
	if err := db.Create(&photo).Error; err != nil {
		t.Fatalf("create photo: %v", err)
	}

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)
	if fileID := mirror.UploadPhoto(context.Background(), &photo); fileID == "" {
		t.Fatal("expected a file id")
	}

	db.First(order, "id = ?", order.ID)
	var freeFolderID string
	for _, folder := range fake.folders[*order.DriveFolderID] {
		if folder.Name == FreeFolderName {
			freeFolderID = folder.ID
		}
	}
	if freeFolderID == "" || len(fake.files[freeFolderID]) != 1 {
		t.Fatalf("expected upload into %q, files: %v", FreeFolderName, fake.files)
	}
}

func TestUploadPhotoAlreadyUploadedIsNoop(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makeStorageConfig(t, db, tenant.ID)
	stages := makePipeline(t, db, tenant.ID)
	front := makeRequirement(t, db, tenant.ID, stages[0].ID, "Frente", true)
	order := makeWorkOrder(t, db, tenant.ID, "3008", &stages[0].ID)
	photo := makeStandardPhoto(t, db, order.ID, stages[0].ID, front.ID)
	existing := "file-existing"
	db.Model(photo).Update("drive_file_id", existing)
	photo.DriveFileID = &existing

	fake := newFakeStorage()
	mirror := NewMirror(db, fake.connect)
	if got := mirror.UploadPhoto(context.Background(), photo); got != existing {
		t.Fatalf("expected existing id returned, got %q", got)
	}
	if fake.uploadCalls != 0 {
		t.Fatalf("expected no upload call, got %d", fake.uploadCalls)
	}
}
