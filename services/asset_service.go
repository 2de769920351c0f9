package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// AssetService owns the fixed-asset lifecycle: creation with a full straight-line
// depreciation schedule, idempotent posting of schedule rows through the ledger,
// and disposal.
type AssetService struct {
	db       *gorm.DB
	journal  *JournalService
	validate *validator.Validate
}

// NewAssetService creates a new asset service.
func NewAssetService(db *gorm.DB) *AssetService {
	return &AssetService{
		db:       db,
		journal:  NewJournalService(db),
		validate: validator.New(),
	}
}

// CreateAssetRequest is the input for registering a fixed asset.
type CreateAssetRequest struct {
	Code                  string          `json:"code" validate:"required"`
	Name                  string          `json:"name" validate:"required"`
	AcquisitionDate       time.Time       `json:"acquisition_date" validate:"required"`
	AcquisitionCost       decimal.Decimal `json:"acquisition_cost"`
	ResidualValue         decimal.Decimal `json:"residual_value"`
	UsefulLifeMonths      int             `json:"useful_life_months" validate:"required,gt=0"`
	AssetAccountID        uint            `json:"asset_account_id" validate:"required"`
	DepreciationAccountID uint            `json:"depreciation_account_id" validate:"required"`
	ExpenseAccountID      uint            `json:"expense_account_id" validate:"required"`
}

// CreateAsset registers an asset and generates its full depreciation schedule. The
// monthly amount is rounded half-up once; the final row absorbs the residue so the
// schedule sums exactly to cost minus residual.
func (s *AssetService) CreateAsset(cc CoreContext, req *CreateAssetRequest) (*models.FixedAsset, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewError(ErrValidationFailed, "invalid asset request: %v", err)
	}
	if !req.AcquisitionCost.IsPositive() {
		return nil, NewError(ErrValidationFailed, "acquisition cost must be positive")
	}
	if req.ResidualValue.IsNegative() || req.ResidualValue.GreaterThan(req.AcquisitionCost) {
		return nil, NewError(ErrValidationFailed, "residual value must be between zero and the acquisition cost")
	}

	asset := &models.FixedAsset{
		TenantID:                cc.TenantID,
		Code:                    req.Code,
		Name:                    req.Name,
		AcquisitionDate:         utils.CivilDate(req.AcquisitionDate),
		AcquisitionCost:         utils.RoundMoney(req.AcquisitionCost),
		ResidualValue:           utils.RoundMoney(req.ResidualValue),
		UsefulLifeMonths:        req.UsefulLifeMonths,
		Method:                  models.DepreciationMethodStraightLine,
		AssetAccountID:          req.AssetAccountID,
		DepreciationAccountID:   req.DepreciationAccountID,
		ExpenseAccountID:        req.ExpenseAccountID,
		AccumulatedDepreciation: decimal.Zero,
		BookValue:               utils.RoundMoney(req.AcquisitionCost),
		Status:                  models.AssetStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(asset).Error; err != nil {
			return fmt.Errorf("failed to create asset: %w", err)
		}
		schedules := GenerateStraightLineSchedule(asset)
		for i := range schedules {
			schedules[i].AssetID = asset.ID
			schedules[i].TenantID = cc.TenantID
		}
		if err := tx.Create(&schedules).Error; err != nil {
			return fmt.Errorf("failed to create depreciation schedule: %w", err)
		}
		asset.Schedules = schedules
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "fixed_asset", asset.ID, "asset_created").
		WithField("code", asset.Code).Info("fixed asset created")
	return asset, nil
}

// GenerateStraightLineSchedule produces one row per month of useful life, starting
// at the first of the acquisition month. The last row absorbs rounding residue.
func GenerateStraightLineSchedule(asset *models.FixedAsset) []models.DepreciationSchedule {
	depreciable := asset.AcquisitionCost.Sub(asset.ResidualValue)
	months := int64(asset.UsefulLifeMonths)
	monthly := depreciable.DivRound(decimal.NewFromInt(months), 2)

	start := utils.FirstOfMonth(asset.AcquisitionDate)
	schedules := make([]models.DepreciationSchedule, 0, asset.UsefulLifeMonths)
	accumulated := decimal.Zero

	for i := 0; i < asset.UsefulLifeMonths; i++ {
		amount := monthly
		if i == asset.UsefulLifeMonths-1 {
			amount = depreciable.Sub(accumulated)
		}
		accumulated = accumulated.Add(amount)
		schedules = append(schedules, models.DepreciationSchedule{
			PeriodDate:              start.AddDate(0, i, 0),
			DepreciationAmount:      amount,
			AccumulatedDepreciation: accumulated,
			BookValueEnd:            asset.AcquisitionCost.Sub(accumulated),
			IsPosted:                false,
		})
	}
	return schedules
}

// PostSchedule books one schedule row through the ledger: Dr expense / Cr
// accumulated depreciation. Posting an already posted row returns the linked entry.
func (s *AssetService) PostSchedule(cc CoreContext, scheduleID uint) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var entry *models.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var schedule models.DepreciationSchedule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&schedule, scheduleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "depreciation schedule %d not found", scheduleID)
			}
			return err
		}
		if schedule.IsPosted {
			if schedule.EntryID == nil {
				return NewError(ErrRaceCondition, "schedule %d is posted but has no entry", scheduleID)
			}
			var existing models.JournalEntry
			if err := tx.Preload("Lines").First(&existing, *schedule.EntryID).Error; err != nil {
				return err
			}
			entry = &existing
			return nil
		}

		var asset models.FixedAsset
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&asset, schedule.AssetID).Error; err != nil {
			return fmt.Errorf("failed to lock asset %d: %w", schedule.AssetID, err)
		}
		if asset.Status == models.AssetStatusDisposed {
			return NewError(ErrEntryState, "asset %s is disposed", asset.Code)
		}

		var err error
		entry, err = s.journal.CreateEntryTx(tx, cc, &CreateEntryRequest{
			EntryDate:   schedule.PeriodDate,
			Description: fmt.Sprintf("Depreciation %s %s", asset.Code, schedule.PeriodDate.Format("2006-01")),
			Reference:   asset.Code,
			SourceType:  models.SourceTypeDepreciation,
			SourceID:    &asset.ID,
			AutoPost:    true,
			Lines: []JournalLineInput{
				{
					AccountID:    asset.ExpenseAccountID,
					Description:  fmt.Sprintf("Depreciation %s", asset.Name),
					DebitAmount:  schedule.DepreciationAmount,
					CreditAmount: decimal.Zero,
				},
				{
					AccountID:    asset.DepreciationAccountID,
					Description:  fmt.Sprintf("Accumulated depreciation %s", asset.Name),
					DebitAmount:  decimal.Zero,
					CreditAmount: schedule.DepreciationAmount,
				},
			},
		})
		if err != nil {
			return err
		}

		now := cc.Now()
		schedule.EntryID = &entry.ID
		schedule.IsPosted = true
		schedule.PostedAt = &now
		if err := tx.Save(&schedule).Error; err != nil {
			return fmt.Errorf("failed to mark schedule posted: %w", err)
		}

		asset.AccumulatedDepreciation = asset.AccumulatedDepreciation.Add(schedule.DepreciationAmount)
		asset.BookValue = asset.AcquisitionCost.Sub(asset.AccumulatedDepreciation)
		if asset.BookValue.LessThanOrEqual(asset.ResidualValue) {
			asset.Status = models.AssetStatusFullyDepreciated
		}
		if err := tx.Save(&asset).Error; err != nil {
			return fmt.Errorf("failed to update asset totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "depreciation_schedule", scheduleID, "schedule_posted").
		WithField("entry", entry.EntryNumber).Info("depreciation posted")
	return entry, nil
}

// PostDueSchedules posts every unposted schedule row with a period date at or
// before the cutoff, oldest first. Month-end automation calls this.
func (s *AssetService) PostDueSchedules(cc CoreContext, cutoff time.Time) (int, error) {
	if err := cc.Authorize(); err != nil {
		return 0, err
	}

	var due []models.DepreciationSchedule
	err := s.db.
		Joins("JOIN fixed_assets ON fixed_assets.id = depreciation_schedules.asset_id").
		Where("depreciation_schedules.tenant_id = ? AND depreciation_schedules.is_posted = ?", cc.TenantID, false).
		Where("depreciation_schedules.period_date <= ?", utils.CivilDate(cutoff)).
		Where("fixed_assets.status = ?", models.AssetStatusActive).
		Order("depreciation_schedules.period_date ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list due schedules: %w", err)
	}

	posted := 0
	for _, schedule := range due {
		if _, err := s.PostSchedule(cc, schedule.ID); err != nil {
			return posted, err
		}
		posted++
	}
	return posted, nil
}

// Dispose marks an asset DISPOSED. Unposted schedule rows stay unposted and are no
// longer picked up by PostDueSchedules.
func (s *AssetService) Dispose(cc CoreContext, assetID uint) (*models.FixedAsset, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var asset models.FixedAsset
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&asset, assetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "asset %d not found", assetID)
			}
			return err
		}
		if asset.Status == models.AssetStatusDisposed {
			return nil
		}
		now := cc.Now()
		asset.Status = models.AssetStatusDisposed
		asset.DisposedAt = &now
		return tx.Save(&asset).Error
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetAsset loads an asset with its schedule.
func (s *AssetService) GetAsset(cc CoreContext, assetID uint) (*models.FixedAsset, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var asset models.FixedAsset
	err := s.db.Preload("Schedules", func(db *gorm.DB) *gorm.DB {
		return db.Order("period_date ASC")
	}).Where("tenant_id = ?", cc.TenantID).First(&asset, assetID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "asset %d not found", assetID)
		}
		return nil, err
	}
	return &asset, nil
}
