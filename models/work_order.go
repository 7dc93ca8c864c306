package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkOrder (OS) is one vehicle repair job tracked through the tenant's
// stages. Code is the shop's own number and is unique per tenant.
type WorkOrder struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_os_tenant_code" json:"oficina_id"`
	Tenant   *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Code     string    `gorm:"size:50;not null;uniqueIndex:idx_os_tenant_code" json:"codigo"`

	// Remote mirror folder for this work order, set once on first ensure.
	DriveFolderID *string `gorm:"size:255" json:"drive_folder_id"`

	Plate         *string `gorm:"size:10" json:"placa"`
	VehicleModel  *string `gorm:"size:100" json:"modelo_veiculo"`
	VehicleColor  *string `gorm:"size:50" json:"cor_veiculo"`
	CustomerName  *string `gorm:"size:255" json:"nome_cliente"`
	CustomerPhone *string `gorm:"size:20" json:"telefone_cliente"`

	CurrentStageID *uuid.UUID `gorm:"type:uuid" json:"etapa_atual"`
	CurrentStage   *Stage     `gorm:"foreignKey:CurrentStageID" json:"etapa_atual_detalhe,omitempty"`
	Notes          *string    `json:"observacoes"`

	EntryDate            *time.Time `json:"data_entrada"`
	ExpectedDeliveryDate *time.Time `json:"data_prevista_entrega"`
	ExitDate             *time.Time `json:"data_saida"`

	Open bool `gorm:"default:true" json:"aberta"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (o *WorkOrder) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return
}

// FolderName is the deterministic remote-mirror folder name for this work
// order. The scheme is fixed for interoperability with existing mirrored
// trees: "OS-<code> - <plate> - <model>", trimmed.
func (o *WorkOrder) FolderName() string {
	plate := ""
	if o.Plate != nil {
		plate = *o.Plate
	}
	model := ""
	if o.VehicleModel != nil {
		model = *o.VehicleModel
	}
	return strings.TrimSpace(fmt.Sprintf("OS-%s - %s - %s", o.Code, plate, model))
}

// AppendNote joins free text onto the work order's running notes, never
// overwriting what is already there.
func (o *WorkOrder) AppendNote(text string) {
	if text == "" {
		return
	}
	if o.Notes == nil || *o.Notes == "" {
		o.Notes = &text
		return
	}
	joined := *o.Notes + "\n" + text
	o.Notes = &joined
}

// StageProgress is the per (work order, stage) completion ledger row. A nil
// CompletedAt means the stage is still pending.
type StageProgress struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkOrderID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_progress_os_stage" json:"os_id"`
	WorkOrder   *WorkOrder `gorm:"foreignKey:WorkOrderID;constraint:OnDelete:CASCADE" json:"-"`
	StageID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_progress_os_stage" json:"etapa_id"`
	Stage       *Stage     `gorm:"foreignKey:StageID;constraint:OnDelete:CASCADE" json:"-"`
	CompletedAt *time.Time `json:"concluida_em"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (p *StageProgress) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

// StageNote is the single free-text note per (work order, stage), upserted.
type StageNote struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	WorkOrderID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_note_os_stage" json:"os_id"`
	WorkOrder   *WorkOrder  `gorm:"foreignKey:WorkOrderID;constraint:OnDelete:CASCADE" json:"-"`
	StageID     uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_note_os_stage" json:"etapa_id"`
	Stage       *Stage      `gorm:"foreignKey:StageID;constraint:OnDelete:CASCADE" json:"-"`
	Text        string      `gorm:"not null" json:"texto"`
	CreatedByID *uuid.UUID  `gorm:"type:uuid" json:"criado_por"`
	CreatedBy   *Membership `gorm:"foreignKey:CreatedByID" json:"-"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (n *StageNote) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}
