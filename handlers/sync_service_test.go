package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/models"
)

func newSyncService(t *testing.T, db *gorm.DB) *SyncService {
	t.Helper()
	photos := NewPhotoService(db, t.TempDir())
	mirror := NewMirror(db, newFakeStorage().connect)
	return NewSyncService(db, photos, mirror)
}

func syncItem(localID, code, model string) SyncItem {
	return SyncItem{
		LocalID: localID,
		OS:      SyncOSData{InternalNumber: code},
		Vehicle: SyncVehicleData{Plate: "ABC1D23", Model: model},
	}
}

func TestSyncCreatesThenSkipsIdenticalResubmit(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	req := SyncRequest{Pending: []SyncItem{syncItem("loc-1", "4001", "Gol")}}
	results := sync.Process(context.Background(), tenant, uuid.New(), req)
	if len(results) != 1 || results[0].Status != SyncCreated {
		t.Fatalf("expected created, got %+v", results)
	}
	if results[0].WorkOrderID == nil {
		t.Fatal("expected os_id on created result")
	}

	// The client never got the response and pushes the same batch again.
	again := sync.Process(context.Background(), tenant, uuid.New(), req)
	if again[0].Status != SyncSkipped {
		t.Fatalf("expected skipped on identical resubmit, got %+v", again[0])
	}
	if *again[0].WorkOrderID != *results[0].WorkOrderID {
		t.Fatal("resubmit must resolve to the same work order")
	}

	var count int64
	db.Model(&models.WorkOrder{}).Where("tenant_id = ?", tenant.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single work order, got %d", count)
	}
}

func TestSyncUpdatesChangedFields(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	first := SyncRequest{Pending: []SyncItem{syncItem("loc-1", "4002", "Gol")}}
	sync.Process(context.Background(), tenant, uuid.New(), first)

	changed := syncItem("loc-1", "4002", "Gol")
	changed.Client = SyncClientData{Name: "Maria", Phone: "11999990000"}
	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{changed}})
	if results[0].Status != SyncUpdated {
		t.Fatalf("expected updated, got %+v", results[0])
	}

	var order models.WorkOrder
	db.Where("tenant_id = ? AND code = ?", tenant.ID, "4002").First(&order)
	if order.CustomerName == nil || *order.CustomerName != "Maria" {
		t.Fatalf("expected customer merged, got %v", order.CustomerName)
	}
}

func TestSyncRejectsBlankVehicleModel(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	results := sync.Process(context.Background(), tenant, uuid.New(),
		SyncRequest{Pending: []SyncItem{syncItem("loc-1", "4003", "   ")}})
	if results[0].Status != SyncError {
		t.Fatalf("expected error status, got %+v", results[0])
	}
	if _, ok := results[0].Errors["modelo_veiculo"]; !ok {
		t.Fatalf("expected modelo_veiculo field error, got %v", results[0].Errors)
	}

	var count int64
	db.Model(&models.WorkOrder{}).Where("tenant_id = ?", tenant.ID).Count(&count)
	if count != 0 {
		t.Fatalf("rejected item must not create rows, got %d", count)
	}
}

func TestSyncCodeFallsBackToPlate(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	item := syncItem("loc-1", "", "Gol")
	sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})

	var order models.WorkOrder
	if err := db.Where("tenant_id = ? AND code = ?", tenant.ID, "ABC1D23").First(&order).Error; err != nil {
		t.Fatalf("expected plate used as code: %v", err)
	}
}

func TestSyncGeneratesCodeWhenNothingGiven(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	item := SyncItem{LocalID: "loc-1", Vehicle: SyncVehicleData{Model: "Gol"}}
	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if results[0].Status != SyncCreated {
		t.Fatalf("expected created, got %+v", results[0])
	}

	var order models.WorkOrder
	db.First(&order, "id = ?", *results[0].WorkOrderID)
	if !strings.HasPrefix(order.Code, "PWA-") {
		t.Fatalf("expected generated PWA code, got %q", order.Code)
	}
}

func TestSyncDefaultsStageToFirstActive(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	stages := makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	results := sync.Process(context.Background(), tenant, uuid.New(),
		SyncRequest{Pending: []SyncItem{syncItem("loc-1", "4004", "Gol")}})

	var order models.WorkOrder
	db.First(&order, "id = ?", *results[0].WorkOrderID)
	if order.CurrentStageID == nil || *order.CurrentStageID != stages[0].ID {
		t.Fatalf("expected first active stage, got %v", order.CurrentStageID)
	}
}

func TestSyncPhotoDedupWithinBatchAndAcrossResubmits(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	photo := SyncPhoto{File: FileField(pngDataURL())}
	item := syncItem("loc-1", "4005", "Gol")
	item.Photos.Free = []SyncPhoto{photo, photo}

	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if len(results[0].PhotoErrors) != 1 {
		t.Fatalf("expected one duplicate notice, got %v", results[0].PhotoErrors)
	}

	var count int64
	db.Model(&models.Photo{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single stored photo, got %d", count)
	}

	// Same batch again: the stored file's content hash blocks the photo too.
	again := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if again[0].Status != SyncSkipped {
		t.Fatalf("expected skipped, got %+v", again[0])
	}
	db.Model(&models.Photo{}).Count(&count)
	if count != 1 {
		t.Fatalf("resubmit must not duplicate photos, got %d", count)
	}
}

func TestSyncPhotoDedupByLocalID(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	item := syncItem("loc-1", "4006", "Gol")
	item.Photos.Free = []SyncPhoto{
		{LocalID: "cam-1", File: FileField(pngDataURL())},
		{LocalID: "cam-1", File: FileField(pngDataURL())},
	}

	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if len(results[0].PhotoErrors) != 1 {
		t.Fatalf("expected one duplicate notice, got %v", results[0].PhotoErrors)
	}
}

func TestSyncResubmitWithLocalIDDoesNotDuplicatePhoto(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	item := syncItem("loc-1", "4010", "Gol")
	item.Photos.Free = []SyncPhoto{{LocalID: "cam-7", File: FileField(pngDataURL())}}

	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if results[0].Status != SyncCreated {
		t.Fatalf("expected created, got %+v", results[0])
	}

	var photo models.Photo
	if err := db.First(&photo, "work_order_id = ?", *results[0].WorkOrderID).Error; err != nil {
		t.Fatalf("load photo: %v", err)
	}
	if photo.LocalID != "cam-7" {
		t.Fatalf("expected stored local id cam-7, got %q", photo.LocalID)
	}

	// The PWA retries the whole batch after a flaky connection. The stored
	// local id must block the photo even across Process calls.
	again := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if again[0].Status != SyncSkipped {
		t.Fatalf("expected skipped, got %+v", again[0])
	}
	if len(again[0].PhotoErrors) != 1 {
		t.Fatalf("expected one duplicate notice, got %v", again[0].PhotoErrors)
	}

	var count int64
	db.Model(&models.Photo{}).Count(&count)
	if count != 1 {
		t.Fatalf("resubmit must not duplicate photos, got %d", count)
	}
}

func TestSyncBadPhotoDoesNotFailItem(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	makePipeline(t, db, tenant.ID)
	sync := newSyncService(t, db)

	item := syncItem("loc-1", "4007", "Gol")
	item.Photos.Free = []SyncPhoto{{File: FileField("!!! not base64 !!!")}}

	results := sync.Process(context.Background(), tenant, uuid.New(), SyncRequest{Pending: []SyncItem{item}})
	if results[0].Status != SyncCreated {
		t.Fatalf("expected the OS still created, got %+v", results[0])
	}
	if len(results[0].PhotoErrors) != 1 {
		t.Fatalf("expected one photo error, got %v", results[0].PhotoErrors)
	}
}

func TestSyncFileFieldAcceptsObjectShape(t *testing.T) {
	raw := []byte(`{"dataUrl": "data:image/png;base64,QUJD"}`)
	var f FileField
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal object shape: %v", err)
	}
	if !strings.HasPrefix(string(f), "data:image/png") {
		t.Fatalf("expected dataUrl taken, got %q", f)
	}

	raw = []byte(`"data:image/png;base64,QUJD"`)
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal string shape: %v", err)
	}
	if !strings.HasPrefix(string(f), "data:image/png") {
		t.Fatalf("expected string kept, got %q", f)
	}
}

func TestResolveTenantRequiresMembership(t *testing.T) {
	db := testDB(t)
	sync := newSyncService(t, db)

	if _, err := sync.ResolveTenant(uuid.New(), false); !errors.Is(err, ErrNoTenantResolved) {
		t.Fatalf("expected ErrNoTenantResolved, got %v", err)
	}
}

func TestResolveTenantSuperuserFallsBackToFirstTenant(t *testing.T) {
	db := testDB(t)
	tenant := makeTenant(t, db)
	sync := newSyncService(t, db)

	resolved, err := sync.ResolveTenant(uuid.New(), true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != tenant.ID {
		t.Fatalf("expected first tenant fallback, got %s", resolved.ID)
	}
}
