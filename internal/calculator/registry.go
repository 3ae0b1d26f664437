package calculator

import (
	"context"
	"fmt"
	"sync"

	"github.com/AI2HU/gauge/internal/models"
)

// Registry selects the calculator for a model's problem type
type Registry struct {
	mu          sync.RWMutex
	calculators map[models.ProblemType]Calculator
}

// NewRegistry returns a registry with the built-in calculators.
// correct is the multiclass correctness predicate; nil uses DefaultCorrectness.
func NewRegistry(correct CorrectnessFunc) *Registry {
	r := &Registry{calculators: make(map[models.ProblemType]Calculator)}

	multiclass := MulticlassCalculator{Correct: correct}
	language := LanguageCalculator{}

	r.Register(models.ProblemBinaryClass, BinaryCalculator{})
	r.Register(models.ProblemMultiClass, multiclass)
	r.Register(models.ProblemClassification, multiclass)
	r.Register(models.ProblemMultiLabel, MultilabelCalculator{})
	r.Register(models.ProblemTextGeneration, language)
	r.Register(models.ProblemGeneration, language)

	return r
}

// Register binds a calculator to a problem type, replacing any previous one
func (r *Registry) Register(problemType models.ProblemType, c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[problemType] = c
}

// Get returns the calculator for problemType
func (r *Registry) Get(problemType models.ProblemType) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.calculators[problemType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProblemType, problemType)
	}
	return c, nil
}

// Supports reports whether problemType has a calculator
func (r *Registry) Supports(problemType models.ProblemType) bool {
	_, err := r.Get(problemType)
	return err == nil
}

// Calculate computes metric over logs with the calculator for model's problem type
func (r *Registry) Calculate(ctx context.Context, model *models.Model, metric *models.ModelMetric, logs []models.ModelLog) (Result, error) {
	c, err := r.Get(model.ProblemType)
	if err != nil {
		return Result{}, err
	}
	return c.Calculate(ctx, metric, logs, model.ClassMapping())
}
