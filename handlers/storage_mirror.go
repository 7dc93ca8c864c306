package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/logger"
	"github.com/checkauto/checkauto-api/models"
	"github.com/checkauto/checkauto-api/pkg/storage"
)

// FreeFolderName is the fixed catch-all subfolder of every work-order folder.
const FreeFolderName = "00 - Livres"

// Mirror replicates a work order's photo tree to the tenant's remote storage.
// Everything here is best-effort: a storage outage must never fail the
// workflow transaction that triggered it, so provider errors are converted to
// an empty result plus a structured log entry and nothing else.
type Mirror struct {
	db      *gorm.DB
	connect storage.ConnectFunc
	log     *zap.Logger
}

func NewMirror(db *gorm.DB, connect storage.ConnectFunc) *Mirror {
	return &Mirror{db: db, connect: connect, log: logger.L()}
}

// clientFor builds a provider client for the tenant, or returns nil when the
// tenant has no active storage integration.
func (m *Mirror) clientFor(ctx context.Context, tenantID uuid.UUID) (storage.RemoteStorage, *models.TenantStorageConfig) {
	var cfg models.TenantStorageConfig
	err := m.db.Where("tenant_id = ? AND active = ?", tenantID, true).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.log.Warn("remote storage not configured for tenant",
			zap.String("tenant_id", tenantID.String()))
		return nil, nil
	}
	if err != nil {
		m.log.Error("load storage config",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return nil, nil
	}

	client, err := m.connect(ctx, storage.Config{
		Provider:        cfg.Provider,
		Bucket:          cfg.Bucket,
		CredentialsJSON: string(cfg.CredentialsJSON),
	})
	if err != nil {
		m.log.Error("build storage client",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return nil, nil
	}
	return client, &cfg
}

// HasActiveConfig reports whether the tenant has an enabled storage
// integration. Used by callers that want to distinguish "unconfigured" from
// "failed" without triggering any network call.
func (m *Mirror) HasActiveConfig(tenantID uuid.UUID) bool {
	var count int64
	m.db.Model(&models.TenantStorageConfig{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Count(&count)
	return count > 0
}

// EnsureWorkOrderFolder returns the work order's remote folder id, creating
// the folder (and its stage subfolders, best-effort) on first call. The id
// is cached on the row, so repeat calls cost nothing. An empty result means
// the mirror is unavailable right now; callers retry later.
func (m *Mirror) EnsureWorkOrderFolder(ctx context.Context, order *models.WorkOrder) string {
	if order.DriveFolderID != nil && *order.DriveFolderID != "" {
		return *order.DriveFolderID
	}

	client, cfg := m.clientFor(ctx, order.TenantID)
	if client == nil {
		return ""
	}

	name := order.FolderName()
	folderID := m.findOrCreateFolder(ctx, client, cfg.RootFolderID, name, order)
	if folderID == "" {
		return ""
	}

	order.DriveFolderID = &folderID
	if err := m.db.Model(order).Update("drive_folder_id", folderID).Error; err != nil {
		m.log.Error("persist work order folder id",
			zap.String("tenant_id", order.TenantID.String()),
			zap.String("os_id", order.ID.String()),
			zap.Error(err))
		return ""
	}

	m.createStageSubfolders(ctx, client, order, folderID)
	return folderID
}

// findOrCreateFolder searches the parent for an exact-name folder before
// creating one. Duplicates can exist in trees touched by older releases; the
// earliest-created one wins and the rest are logged.
func (m *Mirror) findOrCreateFolder(ctx context.Context, client storage.RemoteStorage, parentID, name string, order *models.WorkOrder) string {
	fields := []zap.Field{
		zap.String("tenant_id", order.TenantID.String()),
		zap.String("os_id", order.ID.String()),
		zap.String("folder_name", name),
	}

	folders, err := client.ListFolders(ctx, parentID, name)
	if err != nil {
		m.log.Warn("search remote folder", append(fields, zap.Error(err))...)
	}
	if len(folders) > 0 {
		sort.Slice(folders, func(i, j int) bool {
			return folders[i].CreatedTime.Before(folders[j].CreatedTime)
		})
		if len(folders) > 1 {
			m.log.Warn("duplicate remote folders, adopting earliest",
				append(fields, zap.Int("count", len(folders)))...)
		}
		return folders[0].ID
	}

	folderID, err := client.CreateFolder(ctx, parentID, name)
	if err != nil {
		m.log.Error("create remote folder", append(fields, zap.Error(err))...)
		return ""
	}
	return folderID
}

// createStageSubfolders pre-creates the "NN - Stage" tree plus the free
// catch-all. Failures here are logged and swallowed; folders are ensured
// again at upload time anyway.
func (m *Mirror) createStageSubfolders(ctx context.Context, client storage.RemoteStorage, order *models.WorkOrder, parentID string) {
	var stages []models.Stage
	if err := m.db.Where("tenant_id = ? AND active = ?", order.TenantID, true).
		Order("sort_order, id").Find(&stages).Error; err != nil {
		m.log.Warn("list stages for subfolders",
			zap.String("tenant_id", order.TenantID.String()), zap.Error(err))
		return
	}

	for _, stage := range stages {
		m.findOrCreateFolder(ctx, client, parentID, stageFolderName(&stage), order)
	}
	m.findOrCreateFolder(ctx, client, parentID, FreeFolderName, order)
}

// EnsureStageFolder returns the remote folder id of the stage's subfolder,
// ensuring the work-order folder first. A nil stage maps to the free
// catch-all folder.
func (m *Mirror) EnsureStageFolder(ctx context.Context, order *models.WorkOrder, stage *models.Stage) string {
	parentID := m.EnsureWorkOrderFolder(ctx, order)
	if parentID == "" {
		return ""
	}

	client, _ := m.clientFor(ctx, order.TenantID)
	if client == nil {
		return ""
	}

	name := FreeFolderName
	if stage != nil {
		name = stageFolderName(stage)
	}
	return m.findOrCreateFolder(ctx, client, parentID, name, order)
}

// UploadPhoto pushes the photo's file to its stage subfolder and records the
// remote id. Already-uploaded photos return their id without any call. An
// empty result means "retry later", never a hard failure.
func (m *Mirror) UploadPhoto(ctx context.Context, photo *models.Photo) string {
	if photo.DriveFileID != nil && *photo.DriveFileID != "" {
		return *photo.DriveFileID
	}

	var order models.WorkOrder
	if err := m.db.First(&order, "id = ?", photo.WorkOrderID).Error; err != nil {
		m.log.Error("load work order for upload",
			zap.String("photo_id", photo.ID.String()), zap.Error(err))
		return ""
	}

	// Free photos live in the catch-all folder, whatever stage they carry.
	var stage *models.Stage
	if photo.Type != models.PhotoFree && photo.StageID != nil {
		var s models.Stage
		if err := m.db.First(&s, "id = ?", *photo.StageID).Error; err == nil {
			stage = &s
		}
	}

	folderID := m.EnsureStageFolder(ctx, &order, stage)
	if folderID == "" {
		return ""
	}

	client, _ := m.clientFor(ctx, order.TenantID)
	if client == nil {
		return ""
	}

	fileID, err := client.UploadFile(ctx, folderID, photo.FilePath, filepath.Base(photo.FilePath))
	if err != nil {
		m.log.Error("upload photo",
			zap.String("tenant_id", order.TenantID.String()),
			zap.String("os_id", order.ID.String()),
			zap.String("photo_id", photo.ID.String()),
			zap.Error(err))
		return ""
	}

	photo.DriveFileID = &fileID
	if err := m.db.Model(photo).Update("drive_file_id", fileID).Error; err != nil {
		m.log.Error("persist photo file id",
			zap.String("photo_id", photo.ID.String()), zap.Error(err))
	}
	return fileID
}

func stageFolderName(stage *models.Stage) string {
	return fmt.Sprintf("%02d - %s", stage.SortOrder, stage.Name)
}
