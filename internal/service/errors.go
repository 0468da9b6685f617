package service

import "errors"

var (
	// ErrSlotNotFound means the slot number does not map to any configured acceptor.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotUnavailable means another session currently holds the slot's lease.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrForbidden means the caller's identity does not match the current claimant.
	ErrForbidden = errors.New("identity does not hold this lease")
	// ErrNothingToRedeem is the benign zero-value redemption outcome.
	ErrNothingToRedeem = errors.New("nothing to redeem")

	ErrInvalidCoinValue = errors.New("coin value must be positive")
	ErrInvalidCoinCount = errors.New("coin count must be positive")

	// ErrCalibrationConflict means an active rule already exists for the pulse count.
	ErrCalibrationConflict = errors.New("active calibration rule already exists for pulse count")
	ErrRuleNotFound        = errors.New("calibration rule not found")

	ErrInvalidIdentity = errors.New("identity must not be empty")
)
