package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhotoType is a closed two-variant discriminator. Wire values match the
// panel/PWA contract.
type PhotoType string

const (
	// PhotoStandard binds the photo to exactly one check-in requirement slot.
	PhotoStandard PhotoType = "PADRAO"
	// PhotoFree is any other photo, taken at any stage, with no slot.
	PhotoFree PhotoType = "LIVRE"
)

var (
	ErrStandardNeedsRequirement = errors.New("standard photos must reference a photo requirement")
	ErrFreeWithRequirement      = errors.New("free photos cannot reference a photo requirement")
)

// Photo is one picture attached to a work order, optionally at a stage.
type Photo struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkOrderID uuid.UUID  `gorm:"type:uuid;not null;index" json:"os_id"`
	WorkOrder   *WorkOrder `gorm:"foreignKey:WorkOrderID;constraint:OnDelete:CASCADE" json:"-"`
	StageID     *uuid.UUID `gorm:"type:uuid" json:"etapa_id"`
	Stage       *Stage     `gorm:"foreignKey:StageID" json:"-"`
	Type        PhotoType  `gorm:"size:10;not null" json:"tipo"`

	// Set only for PhotoStandard.
	RequirementID *uuid.UUID        `gorm:"type:uuid" json:"config_foto_id"`
	Requirement   *PhotoRequirement `gorm:"foreignKey:RequirementID" json:"-"`

	// Local file path of the stored content.
	FilePath string `gorm:"size:255;not null" json:"arquivo"`

	// Remote mirror file id, set once after a successful upload.
	DriveFileID *string `gorm:"size:255" json:"drive_file_id"`

	// Client-side identifier sent by the PWA, kept so resubmitted batches can
	// recognize photos they already delivered.
	LocalID string `gorm:"size:100;index" json:"local_id"`

	Title     *string     `gorm:"size:100" json:"titulo"`
	Note      *string     `gorm:"size:255" json:"observacao"`
	TakenByID *uuid.UUID  `gorm:"type:uuid" json:"tirada_por"`
	TakenBy   *Membership `gorm:"foreignKey:TakenByID" json:"-"`

	// Immutable, set once at creation.
	TakenAt time.Time `gorm:"autoCreateTime" json:"tirada_em"`
}

func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return p.checkTypeInvariant()
}

// checkTypeInvariant keeps the requirement reference and the type mutually
// consistent: PADRAO has one, LIVRE has none.
func (p *Photo) checkTypeInvariant() error {
	switch p.Type {
	case PhotoStandard:
		if p.RequirementID == nil {
			return ErrStandardNeedsRequirement
		}
	case PhotoFree:
		if p.RequirementID != nil {
			return ErrFreeWithRequirement
		}
	default:
		return fmt.Errorf("unknown photo type %q", p.Type)
	}
	return nil
}
