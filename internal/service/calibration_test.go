package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinkiosk/internal/models"
)

func TestAddRule(t *testing.T) {
	repo := newStubRepo()
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	rule, err := svc.AddRule(ctx, 4, dec(t, "5.00"), "bouncy 5-peso sensor")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if rule.ID == 0 || !rule.IsActive {
		t.Fatalf("rule = %+v, want persisted active rule", rule)
	}

	got, err := repo.GetActiveRuleByPulseCount(ctx, 4)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || !got.ActualValue.Equal(dec(t, "5.00")) {
		t.Fatalf("lookup = %+v, want actual value 5.00", got)
	}
}

func TestAddRuleValidation(t *testing.T) {
	repo := newStubRepo()
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	if _, err := svc.AddRule(ctx, 0, dec(t, "5.00"), ""); !errors.Is(err, ErrInvalidCoinCount) {
		t.Fatalf("err = %v, want ErrInvalidCoinCount for pulse count 0", err)
	}
	if _, err := svc.AddRule(ctx, 4, decimal.Zero, ""); !errors.Is(err, ErrInvalidCoinValue) {
		t.Fatalf("err = %v, want ErrInvalidCoinValue", err)
	}
}

func TestAddRuleConflict(t *testing.T) {
	repo := newStubRepo()
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	if _, err := svc.AddRule(ctx, 4, dec(t, "5.00"), ""); err != nil {
		t.Fatalf("first rule: %v", err)
	}
	if _, err := svc.AddRule(ctx, 4, dec(t, "10.00"), ""); !errors.Is(err, ErrCalibrationConflict) {
		t.Fatalf("err = %v, want ErrCalibrationConflict", err)
	}
	// A different pulse count is fine.
	if _, err := svc.AddRule(ctx, 9, dec(t, "10.00"), ""); err != nil {
		t.Fatalf("unrelated rule: %v", err)
	}
}

func TestSetActive(t *testing.T) {
	repo := newStubRepo()
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	first, err := svc.AddRule(ctx, 4, dec(t, "5.00"), "")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if err := svc.SetActive(ctx, first.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Once deactivated, the pulse count is free for a replacement rule.
	second, err := svc.AddRule(ctx, 4, dec(t, "10.00"), "recalibrated")
	if err != nil {
		t.Fatalf("replacement rule: %v", err)
	}

	// Reactivating the old rule would duplicate the active pulse count.
	if err := svc.SetActive(ctx, first.ID, true); !errors.Is(err, ErrCalibrationConflict) {
		t.Fatalf("err = %v, want ErrCalibrationConflict on reactivation", err)
	}
	if err := svc.SetActive(ctx, second.ID, false); err != nil {
		t.Fatalf("deactivate replacement: %v", err)
	}
	if err := svc.SetActive(ctx, first.ID, true); err != nil {
		t.Fatalf("reactivate original: %v", err)
	}

	if err := svc.SetActive(ctx, 9999, true); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("err = %v, want ErrRuleNotFound", err)
	}
}

// toggleTxRepo records which calibration operations run inside InTx.
type toggleTxRepo struct {
	*stubRepo
	inTx        bool
	lookupsInTx int
	togglesInTx int
	togglesNoTx int
}

func (r *toggleTxRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.inTx = true
	defer func() { r.inTx = false }()
	return fn(nil)
}

func (r *toggleTxRepo) GetActiveRuleByPulseCountTx(ctx context.Context, tx *gorm.DB, pulseCount int) (*models.CalibrationRule, error) {
	if r.inTx {
		r.lookupsInTx++
	}
	return r.stubRepo.GetActiveRuleByPulseCountTx(ctx, tx, pulseCount)
}

func (r *toggleTxRepo) SetCalibrationRuleActiveTx(ctx context.Context, tx *gorm.DB, id uint64, active bool) (bool, error) {
	if r.inTx {
		r.togglesInTx++
	} else {
		r.togglesNoTx++
	}
	return r.stubRepo.SetCalibrationRuleActiveTx(ctx, tx, id, active)
}

func TestSetActiveChecksAndTogglesInOneTransaction(t *testing.T) {
	repo := &toggleTxRepo{stubRepo: newStubRepo()}
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	rule, err := svc.AddRule(ctx, 4, dec(t, "5.00"), "")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if err := svc.SetActive(ctx, rule.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := svc.SetActive(ctx, rule.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	if repo.togglesNoTx != 0 {
		t.Fatalf("toggles outside a transaction = %d, want 0", repo.togglesNoTx)
	}
	if repo.togglesInTx != 2 {
		t.Fatalf("toggles in transaction = %d, want 2", repo.togglesInTx)
	}
	// Reactivation performs its duplicate check in the same transaction as
	// the toggle.
	if repo.lookupsInTx < 1 {
		t.Fatal("reactivation conflict check ran outside the toggle transaction")
	}
}

func TestListRulesKeepsHistory(t *testing.T) {
	repo := newStubRepo()
	svc := &CalibrationService{Repo: repo}
	ctx := context.Background()

	rule, err := svc.AddRule(ctx, 4, dec(t, "5.00"), "")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if err := svc.SetActive(ctx, rule.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.AddRule(ctx, 4, dec(t, "10.00"), ""); err != nil {
		t.Fatalf("replacement: %v", err)
	}

	rules, err := svc.ListRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want deactivated history retained", len(rules))
	}
}
