package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
	"coinkiosk/internal/repository"
)

// CalibrationService manages the operator-maintained rules that map an exact
// pulse count to its true coin value. The interpreter consults rules
// read-only; this service is the only writer.
type CalibrationService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// AddRule inserts a new active rule. The uniqueness check and the insert run
// in one transaction so two operators cannot race in a duplicate active rule.
func (s *CalibrationService) AddRule(ctx context.Context, pulseCount int, actualValue decimal.Decimal, note string) (*models.CalibrationRule, error) {
	if pulseCount <= 0 {
		return nil, ErrInvalidCoinCount
	}
	if !actualValue.IsPositive() {
		return nil, ErrInvalidCoinValue
	}

	rule := &models.CalibrationRule{
		PulseCount:  pulseCount,
		ActualValue: actualValue,
		Note:        strings.TrimSpace(note),
		IsActive:    true,
	}
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.Repo.GetActiveRuleByPulseCountTx(ctx, tx, pulseCount)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrCalibrationConflict
		}
		return s.Repo.InsertCalibrationRuleTx(ctx, tx, rule)
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("calibration rule added",
			zap.Int("pulse_count", pulseCount),
			zap.String("actual_value", actualValue.String()),
		)
	}
	return rule, nil
}

func (s *CalibrationService) ListRules(ctx context.Context) ([]models.CalibrationRule, error) {
	return s.Repo.ListCalibrationRules(ctx)
}

// SetActive toggles a rule. Reactivating fails if another active rule holds
// the same pulse count; the check and the update run in one transaction so
// two concurrent toggles cannot leave two active rules for one count.
func (s *CalibrationService) SetActive(ctx context.Context, id uint64, active bool) error {
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if active {
			target, err := s.Repo.GetCalibrationRuleByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if target == nil {
				return ErrRuleNotFound
			}
			existing, err := s.Repo.GetActiveRuleByPulseCountTx(ctx, tx, target.PulseCount)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != id {
				return ErrCalibrationConflict
			}
		}

		ok, err := s.Repo.SetCalibrationRuleActiveTx(ctx, tx, id, active)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRuleNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("calibration rule toggled", zap.Uint64("id", id), zap.Bool("active", active))
	}
	return nil
}
