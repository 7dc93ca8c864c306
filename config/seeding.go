package config

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/checkauto/checkauto-api/models"
)

// SeedDefaultStages creates the standard production flow for a tenant that
// has no stages yet, plus the usual check-in photo slots. Safe to call more
// than once.
func SeedDefaultStages(db *gorm.DB, tenantID uuid.UUID) error {
	var count int64
	if err := db.Model(&models.Stage{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stages := []models.Stage{
		{TenantID: tenantID, Name: "Check-in", SortOrder: 1, IsCheckin: true},
		{TenantID: tenantID, Name: "Funilaria", SortOrder: 2},
		{TenantID: tenantID, Name: "Pintura", SortOrder: 3},
		{TenantID: tenantID, Name: "Preparação", SortOrder: 4},
		{TenantID: tenantID, Name: "Entrega", SortOrder: 5},
	}
	for i := range stages {
		stages[i].Active = true
		stages[i].ShowOnDashboard = true
		if err := db.Create(&stages[i]).Error; err != nil {
			return fmt.Errorf("seed stage %s: %w", stages[i].Name, err)
		}
	}

	checkin := stages[0]
	slots := []models.PhotoRequirement{
		{Name: "Frente do veículo", SortOrder: 1, Mandatory: true},
		{Name: "Traseira", SortOrder: 2, Mandatory: true},
		{Name: "Lateral esquerda", SortOrder: 3, Mandatory: true},
		{Name: "Lateral direita", SortOrder: 4, Mandatory: true},
		{Name: "Painel KM", SortOrder: 5, Mandatory: false},
	}
	for i := range slots {
		slots[i].TenantID = tenantID
		slots[i].StageID = checkin.ID
		slots[i].Active = true
		if err := db.Create(&slots[i]).Error; err != nil {
			return fmt.Errorf("seed photo slot %s: %w", slots[i].Name, err)
		}
	}
	return nil
}
