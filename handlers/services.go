package handlers

import (
	"sync"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/pkg/storage"
)

// Shared service instances over the global DB connection, built on first use
// so config.Connect has run by then.
var (
	servicesOnce sync.Once
	stageEngine  *StageEngine
	photoService *PhotoService
	photoMirror  *Mirror
	syncService  *SyncService
)

func services() (*StageEngine, *PhotoService, *Mirror, *SyncService) {
	servicesOnce.Do(func() {
		stageEngine = NewStageEngine(config.DB)
		photoService = NewPhotoService(config.DB, config.MediaRoot())
		photoMirror = NewMirror(config.DB, storage.Connect)
		syncService = NewSyncService(config.DB, photoService, photoMirror)
	})
	return stageEngine, photoService, photoMirror, syncService
}
