package models

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shared lookups used by the stage engine, the photo service and the sync
// reconciler. All of them return (nil, nil) when nothing matches.

// FirstActiveStage returns the tenant's first active stage by sort order,
// ties broken by id.
func FirstActiveStage(db *gorm.DB, tenantID uuid.UUID) (*Stage, error) {
	var stage Stage
	err := db.Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("sort_order, id").
		First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// CheckinStage returns the tenant's check-in stage.
func CheckinStage(db *gorm.DB, tenantID uuid.UUID) (*Stage, error) {
	var stage Stage
	err := db.Where("tenant_id = ? AND is_checkin = ?", tenantID, true).
		Order("sort_order, id").
		First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// StageByID returns the tenant's stage with the given id.
func StageByID(db *gorm.DB, tenantID, stageID uuid.UUID) (*Stage, error) {
	var stage Stage
	err := db.Where("id = ? AND tenant_id = ?", stageID, tenantID).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// NextActiveStage returns the active stage that follows the given one in the
// tenant's flow: strictly greater sort order, or the same order with a
// greater id.
func NextActiveStage(db *gorm.DB, tenantID uuid.UUID, after *Stage) (*Stage, error) {
	var stage Stage
	err := db.Where(
		"tenant_id = ? AND active = ? AND (sort_order > ? OR (sort_order = ? AND id > ?))",
		tenantID, true, after.SortOrder, after.SortOrder, after.ID,
	).Order("sort_order, id").First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// HomeTenant resolves a user's home tenant as their first active membership.
// Superusers typically have none and get nil.
func HomeTenant(db *gorm.DB, userID uuid.UUID) (*Tenant, error) {
	var membership Membership
	err := db.Preload("Tenant").
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at, id").
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return membership.Tenant, nil
}

// ActiveMembership returns the user's active membership in the given tenant.
func ActiveMembership(db *gorm.DB, userID, tenantID uuid.UUID) (*Membership, error) {
	var membership Membership
	err := db.Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}
