package domain

import "errors"

var (
	// ErrPlacementFailed is returned when every attempt of the open sequence failed.
	ErrPlacementFailed = errors.New("order placement failed")
	// ErrStopReplaceFailed marks a failed stop replacement. The old stop may
	// already be cancelled.
	ErrStopReplaceFailed = errors.New("stop replacement failed")
	// ErrPositionExists means a second position was about to be recorded for an
	// instrument. It indicates a locking bug.
	ErrPositionExists = errors.New("position already open for symbol")
	// ErrSizingInfeasible is returned when no quantity can be derived (zero stop distance).
	ErrSizingInfeasible = errors.New("position sizing infeasible")
	// ErrStaleCandle is returned for a candle not newer than the last stored one.
	ErrStaleCandle = errors.New("candle not newer than last stored candle")

	ErrNoOpenPosition = errors.New("no open position for symbol")
	ErrLockHeld       = errors.New("lock held by another instance")
)
