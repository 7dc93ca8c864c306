package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is a repair shop. Every other record in the system hangs off one.
type Tenant struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:255;not null" json:"nome"`
	CNPJ    *string   `gorm:"size:18" json:"cnpj"`
	Phone   *string   `gorm:"size:20" json:"telefone"`
	Email   *string   `gorm:"size:255" json:"email"`
	Address *string   `gorm:"size:255" json:"endereco"`
	Active  bool      `gorm:"default:true" json:"ativa"`

	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// Membership roles, highest privilege first.
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleOperator = "OPERATOR"
)

// Membership links a user to a tenant with a role. At most one membership per
// (user, tenant) pair.
type Membership struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_tenant" json:"user_id"`
	User     *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_tenant" json:"oficina_id"`
	Tenant   *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"oficina,omitempty"`
	Role     string    `gorm:"size:10;not null;default:OPERATOR" json:"papel"`
	Active   bool      `gorm:"default:true" json:"ativo"`

	CreatedAt time.Time `json:"criado_em"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return
}
