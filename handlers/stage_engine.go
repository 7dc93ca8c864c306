package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/checkauto/checkauto-api/models"
)

// Guard errors reported to callers as client errors. State is never mutated
// when one of these comes back.
var (
	ErrWorkOrderNotFound = errors.New("work order not found for tenant")
	ErrNoCurrentStage    = errors.New("work order has no current stage")
	ErrStageNotFound     = errors.New("stage not found for tenant")
)

// PendingPhotosError blocks an advance while mandatory check-in slots of the
// current stage are still unfilled.
type PendingPhotosError struct {
	RequirementIDs []uuid.UUID
}

func (e *PendingPhotosError) Error() string {
	return fmt.Sprintf("%d mandatory photos still pending", len(e.RequirementIDs))
}

// StageEngine runs the per-work-order stage transitions. Every transition is
// one transaction holding a row lock on the work order for the whole
// read-check-mutate sequence, so two concurrent calls cannot double-advance
// or race the pending-photo check.
type StageEngine struct {
	db *gorm.DB
}

func NewStageEngine(db *gorm.DB) *StageEngine {
	return &StageEngine{db: db}
}

// AdvanceResult is what AdvanceToNext hands back on success.
type AdvanceResult struct {
	WorkOrder   *models.WorkOrder
	IsLastStage bool
	Advanced    bool
}

// lockWorkOrder loads the work order for update. SQLite (tests) has no
// FOR UPDATE; its writes serialize anyway.
func lockWorkOrder(tx *gorm.DB, tenantID, workOrderID uuid.UUID) (*models.WorkOrder, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.WorkOrder
	err := q.Where("id = ? AND tenant_id = ?", workOrderID, tenantID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkCompleted stamps the (work order, stage) ledger row. When the completed
// stage is the work order's current stage, the current stage advances to the
// next active one, or to nil when the flow is over.
func (e *StageEngine) MarkCompleted(tenantID, workOrderID, stageID uuid.UUID, completedAt *time.Time) (*models.WorkOrder, error) {
	var result *models.WorkOrder
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, tenantID, workOrderID)
		if err != nil {
			return err
		}
		stage, err := tenantStage(tx, tenantID, stageID)
		if err != nil {
			return err
		}

		when := time.Now()
		if completedAt != nil {
			when = *completedAt
		}
		if err := upsertProgress(tx, order.ID, stage.ID, &when); err != nil {
			return err
		}

		if order.CurrentStageID != nil && *order.CurrentStageID == stage.ID {
			next, err := models.NextActiveStage(tx, tenantID, stage)
			if err != nil {
				return err
			}
			if next != nil {
				order.CurrentStageID = &next.ID
			} else {
				order.CurrentStageID = nil
			}
			if err := tx.Model(order).Select("current_stage_id").Updates(map[string]interface{}{
				"current_stage_id": order.CurrentStageID,
			}).Error; err != nil {
				return err
			}
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reopen clears the ledger row's completion. Unlike MarkCompleted this may
// move the current stage backward: when the work order has no current stage,
// or the reopened stage sits at or before the current one, the reopened
// stage becomes current.
func (e *StageEngine) Reopen(tenantID, workOrderID, stageID uuid.UUID) (*models.WorkOrder, error) {
	var result *models.WorkOrder
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, tenantID, workOrderID)
		if err != nil {
			return err
		}
		stage, err := tenantStage(tx, tenantID, stageID)
		if err != nil {
			return err
		}

		if err := upsertProgress(tx, order.ID, stage.ID, nil); err != nil {
			return err
		}

		moveBack := order.CurrentStageID == nil
		if !moveBack {
			var current models.Stage
			if err := tx.First(&current, "id = ?", *order.CurrentStageID).Error; err != nil {
				return err
			}
			moveBack = stage.SortOrder <= current.SortOrder
		}
		if moveBack {
			order.CurrentStageID = &stage.ID
			if err := tx.Model(order).Update("current_stage_id", stage.ID).Error; err != nil {
				return err
			}
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceToNext moves the work order from its current stage to the next
// active one, refusing while mandatory check-in slots of the current stage
// are unfilled. originStageID is an idempotence guard: when the caller's
// observed stage no longer matches, someone already advanced and the call
// returns the fresh state untouched. The optional note is appended to the
// work order's running notes.
func (e *StageEngine) AdvanceToNext(tenantID, workOrderID uuid.UUID, note string, originStageID *uuid.UUID) (*AdvanceResult, error) {
	var result AdvanceResult
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, tenantID, workOrderID)
		if err != nil {
			return err
		}
		result.WorkOrder = order

		if order.CurrentStageID == nil {
			return ErrNoCurrentStage
		}
		if originStageID != nil && *originStageID != *order.CurrentStageID {
			// Lost the race; the winner already moved the stage.
			return nil
		}

		current, err := tenantStage(tx, tenantID, *order.CurrentStageID)
		if err != nil {
			return err
		}

		pending, err := pendingRequirements(tx, order, current)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return &PendingPhotosError{RequirementIDs: pending}
		}

		next, err := models.NextActiveStage(tx, tenantID, current)
		if err != nil {
			return err
		}
		if next == nil {
			result.IsLastStage = true
			return nil
		}

		order.CurrentStageID = &next.ID
		order.AppendNote(note)
		if err := tx.Model(order).Select("current_stage_id", "notes").Updates(map[string]interface{}{
			"current_stage_id": order.CurrentStageID,
			"notes":            order.Notes,
		}).Error; err != nil {
			return err
		}
		if note != "" {
			// The note also lands on the stage it was written at.
			if err := upsertNoteRow(tx, order.ID, current.ID, note, nil); err != nil {
				return err
			}
		}
		result.Advanced = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpsertStageNote writes the single free-text note of a (work order, stage)
// pair, replacing any previous text.
func (e *StageEngine) UpsertStageNote(tenantID, workOrderID, stageID uuid.UUID, text string, createdBy *uuid.UUID) (*models.StageNote, error) {
	var note models.StageNote
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockWorkOrder(tx, tenantID, workOrderID)
		if err != nil {
			return err
		}
		stage, err := tenantStage(tx, tenantID, stageID)
		if err != nil {
			return err
		}

		if err := upsertNoteRow(tx, order.ID, stage.ID, text, createdBy); err != nil {
			return err
		}
		return tx.Where("work_order_id = ? AND stage_id = ?", order.ID, stage.ID).First(&note).Error
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// upsertNoteRow writes the single note of a (work order, stage) pair.
func upsertNoteRow(tx *gorm.DB, workOrderID, stageID uuid.UUID, text string, createdBy *uuid.UUID) error {
	var note models.StageNote
	err := tx.Where("work_order_id = ? AND stage_id = ?", workOrderID, stageID).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		note = models.StageNote{
			WorkOrderID: workOrderID,
			StageID:     stageID,
			Text:        text,
			CreatedByID: createdBy,
		}
		return tx.Create(&note).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&note).Update("text", text).Error
}

// tenantStage loads a stage scoped to the tenant.
func tenantStage(tx *gorm.DB, tenantID, stageID uuid.UUID) (*models.Stage, error) {
	var stage models.Stage
	err := tx.Where("id = ? AND tenant_id = ?", stageID, tenantID).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// upsertProgress creates or updates the single ledger row of the pair.
func upsertProgress(tx *gorm.DB, workOrderID, stageID uuid.UUID, completedAt *time.Time) error {
	var progress models.StageProgress
	err := tx.Where("work_order_id = ? AND stage_id = ?", workOrderID, stageID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		progress = models.StageProgress{
			WorkOrderID: workOrderID,
			StageID:     stageID,
			CompletedAt: completedAt,
		}
		return tx.Create(&progress).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&progress).Update("completed_at", completedAt).Error
}

// pendingRequirements lists the mandatory active slots of the stage that have
// no standard photo on the work order yet.
func pendingRequirements(tx *gorm.DB, order *models.WorkOrder, stage *models.Stage) ([]uuid.UUID, error) {
	var requirements []models.PhotoRequirement
	if err := tx.Where(
		"tenant_id = ? AND stage_id = ? AND mandatory = ? AND active = ?",
		order.TenantID, stage.ID, true, true,
	).Order("sort_order, id").Find(&requirements).Error; err != nil {
		return nil, err
	}

	var pending []uuid.UUID
	for _, req := range requirements {
		var count int64
		if err := tx.Model(&models.Photo{}).Where(
			"work_order_id = ? AND type = ? AND requirement_id = ?",
			order.ID, models.PhotoStandard, req.ID,
		).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			pending = append(pending, req.ID)
		}
	}
	return pending, nil
}
