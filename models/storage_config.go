package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Storage providers accepted in TenantStorageConfig.Provider.
const (
	ProviderDrive = "drive"
	ProviderGCS   = "gcs"
)

// TenantStorageConfig holds a tenant's remote-storage integration: the root
// folder every work-order folder is created under and the opaque OAuth
// credential blob (refreshed externally).
type TenantStorageConfig struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"oficina_id"`
	Tenant          *Tenant        `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Provider        string         `gorm:"size:20;not null;default:drive" json:"provider"`
	RootFolderID    string         `gorm:"size:255;not null" json:"root_folder_id"`
	Bucket          string         `gorm:"size:255" json:"bucket"`
	CredentialsJSON datatypes.JSON `json:"-"`
	Active          bool           `gorm:"default:true" json:"ativo"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (c *TenantStorageConfig) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
