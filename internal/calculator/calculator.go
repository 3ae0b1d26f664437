// Package calculator turns a batch of model logs into metric values.
//
// Each problem type family reduces the batch to a set of named variables and
// then evaluates the metric formula over them with the formula package.
package calculator

import (
	"context"
	"errors"
	"fmt"

	"github.com/AI2HU/gauge/internal/formula"
	"github.com/AI2HU/gauge/internal/models"
)

var (
	// ErrUnsupportedProblemType is returned for problem types with no calculator
	ErrUnsupportedProblemType = errors.New("unsupported problem type")
	// ErrMissingFormula is returned when a metric has neither formula nor function
	ErrMissingFormula = errors.New("metric has no formula")
)

// Result is the outcome of one metric computation
type Result struct {
	Value     float64
	Variables Variables
	// Breakdown holds per-label values for multilabel metrics
	Breakdown map[string]float64
}

// Calculator computes one metric over a batch of logs
type Calculator interface {
	Calculate(ctx context.Context, metric *models.ModelMetric, logs []models.ModelLog, classMapping map[string]int) (Result, error)
}

// evaluate runs the metric formula over vars
func evaluate(metric *models.ModelMetric, vars Variables) (float64, error) {
	f := metric.Formula()
	if f == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingFormula, metric.Name)
	}
	return formula.Evaluate(f, vars)
}

// BinaryCalculator handles binary classification models
type BinaryCalculator struct{}

func (BinaryCalculator) Calculate(ctx context.Context, metric *models.ModelMetric, logs []models.ModelLog, classMapping map[string]int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vars := BinaryVariables(logs, classMapping)
	value, err := evaluate(metric, vars)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, Variables: vars}, nil
}

// HealthcheckMetricName is the multiclass metric that always reports 1
const HealthcheckMetricName = "Healtcheck"

// MulticlassCalculator handles multiclass classification models
type MulticlassCalculator struct {
	Correct CorrectnessFunc
}

func (c MulticlassCalculator) Calculate(ctx context.Context, metric *models.ModelMetric, logs []models.ModelLog, classMapping map[string]int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if metric.Name == HealthcheckMetricName {
		return Result{Value: 1}, nil
	}

	correct := c.Correct
	if correct == nil {
		correct = DefaultCorrectness
	}

	vars := MulticlassVariables(logs, correct)
	value, err := evaluate(metric, vars)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, Variables: vars}, nil
}

// MultilabelCalculator handles multilabel classification models
type MultilabelCalculator struct{}

func (MultilabelCalculator) Calculate(ctx context.Context, metric *models.ModelMetric, logs []models.ModelLog, classMapping map[string]int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vars, perLabel := MultilabelVariables(logs)
	value, err := evaluate(metric, vars)
	if err != nil {
		return Result{}, err
	}

	breakdown := make(map[string]float64, len(perLabel))
	for label, labelVars := range perLabel {
		v, err := evaluate(metric, labelVars)
		if err != nil {
			// labels with no support divide by zero; they are left out
			continue
		}
		breakdown[label] = v
	}

	return Result{Value: value, Variables: vars, Breakdown: breakdown}, nil
}

// LanguageCalculator handles text generation models
type LanguageCalculator struct{}

func (LanguageCalculator) Calculate(ctx context.Context, metric *models.ModelMetric, logs []models.ModelLog, classMapping map[string]int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vars := LanguageVariables(logs)
	value, err := evaluate(metric, vars)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, Variables: vars}, nil
}
