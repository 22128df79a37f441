package engine

import (
	"errors"
	"fmt"
)

// Call failures split into two classes: protocol violations (wrong phase,
// wrong caller, illegal move) abort with zero mutation and are recoverable
// by the caller; arithmetic failures indicate a defect and are fatal for the
// game session.
var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrArithmeticFailure = errors.New("arithmetic failure")
)

func violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func arithmeticf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArithmeticFailure, fmt.Sprintf(format, args...))
}
