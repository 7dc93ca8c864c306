package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stage is one ordered step of a tenant's production flow, e.g. Check-in,
// Funilaria, Pintura, Preparação, Entrega. Exactly one stage per tenant is
// expected to carry the check-in flag.
type Stage struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        uuid.UUID `gorm:"type:uuid;not null;index" json:"oficina_id"`
	Tenant          *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Name            string    `gorm:"size:100;not null" json:"nome"`
	SortOrder       int       `gorm:"not null" json:"ordem"`
	IsCheckin       bool      `gorm:"default:false" json:"is_checkin"`
	ShowOnDashboard bool      `gorm:"default:true" json:"mostrar_no_dashboard"`
	Active          bool      `gorm:"default:true" json:"ativa"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (s *Stage) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// ErrRequirementNotCheckin rejects photo slots configured on any stage other
// than the check-in stage.
var ErrRequirementNotCheckin = errors.New("photo requirements are only allowed on the check-in stage")

// PhotoRequirement is a named photo slot for the check-in stage: "Frente do
// veículo", "Painel KM" and so on. Standard photos bind to one of these.
type PhotoRequirement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"oficina_id"`
	Tenant      *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	StageID     uuid.UUID `gorm:"type:uuid;not null;index" json:"etapa_id"`
	Stage       *Stage    `gorm:"foreignKey:StageID;constraint:OnDelete:CASCADE" json:"-"`
	Name        string    `gorm:"size:100;not null" json:"nome"`
	Description *string   `gorm:"size:255" json:"descricao"`
	Mandatory   bool      `gorm:"default:true" json:"obrigatoria"`
	SortOrder   int       `gorm:"not null;default:1" json:"ordem"`
	Active      bool      `gorm:"default:true" json:"ativa"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (r *PhotoRequirement) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// BeforeSave enforces the check-in rule at write time: a requirement's stage
// must be flagged is_checkin.
func (r *PhotoRequirement) BeforeSave(tx *gorm.DB) error {
	var stage Stage
	if err := tx.First(&stage, "id = ?", r.StageID).Error; err != nil {
		return err
	}
	if !stage.IsCheckin {
		return ErrRequirementNotCheckin
	}
	return nil
}
