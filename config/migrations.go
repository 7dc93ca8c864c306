package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/models"
)

// Migrations applies every pending schema migration. Each migration runs at
// most once per database.
func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250901_create_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.User{},
					&models.Tenant{},
					&models.Membership{},
					&models.Stage{},
					&models.PhotoRequirement{},
					&models.WorkOrder{},
					&models.StageProgress{},
					&models.StageNote{},
					&models.Photo{},
					&models.TenantStorageConfig{},
				)
			},
		},
	})
	return m.Migrate()
}
