package services

import (
	"context"
	"errors"

	"github.com/AI2HU/gauge/internal/calculator"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/formula"
)

var (
	// ErrMissingFormula is returned when a metric has neither formula nor function
	ErrMissingFormula = calculator.ErrMissingFormula
	// ErrIncompleteRun is returned when at least one model batch was left unmarked by a store failure
	ErrIncompleteRun = errors.New("metric job left batches unprocessed")
)

// IsConfigError reports errors caused by model or metric configuration.
// These are logged and skipped, never retried.
func IsConfigError(err error) bool {
	var formulaErr *formula.FormulaEvaluationError
	return errors.Is(err, calculator.ErrUnsupportedProblemType) ||
		errors.Is(err, ErrMissingFormula) ||
		errors.As(err, &formulaErr)
}

// IsRetryable reports whether a failed job run should be attempted again
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, db.ErrNotFound):
		return false
	case IsConfigError(err):
		return false
	}
	return true
}
