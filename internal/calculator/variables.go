package calculator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/AI2HU/gauge/internal/models"
)

// Variable names available to classification formulas
const (
	TruePositive  = "true_positive"
	FalsePositive = "false_positive"
	TrueNegative  = "true_negative"
	FalseNegative = "false_negative"
	RealTrue      = "real_true"
	RealFalse     = "real_false"
)

// Variable names available to language formulas
const (
	Relevance = "relevance"
	Coherence = "coherence"
	Accuracy  = "accuracy"
)

// Variables maps formula variable names to their values for one batch
type Variables map[string]float64

// CorrectnessFunc decides whether a multiclass log was predicted correctly
type CorrectnessFunc func(log models.ModelLog) bool

// DefaultCorrectness compares the predicted and real class labels
func DefaultCorrectness(log models.ModelLog) bool {
	predicted, ok := labelKey(log.Actual["modelClass"])
	if !ok {
		return false
	}
	real, ok := labelKey(log.Actual["class"])
	if !ok {
		return false
	}
	return predicted == real
}

func confusion(tp, fp, tn, fn, realTrue, realFalse int) Variables {
	return Variables{
		TruePositive:  float64(tp),
		FalsePositive: float64(fp),
		TrueNegative:  float64(tn),
		FalseNegative: float64(fn),
		RealTrue:      float64(realTrue),
		RealFalse:     float64(realFalse),
	}
}

// BinaryVariables counts the confusion matrix of a binary batch.
// Logs whose predicted or real class is not in the mapping are not counted.
func BinaryVariables(logs []models.ModelLog, classMapping map[string]int) Variables {
	mapping := withIdentityLabels(classMapping)

	var tp, fp, tn, fn, realTrue, realFalse int
	for _, log := range logs {
		predicted, ok := mappedClass(log.Actual["modelClass"], mapping)
		if !ok {
			continue
		}
		real, ok := mappedClass(log.Actual["class"], mapping)
		if !ok {
			continue
		}

		if real {
			realTrue++
		} else {
			realFalse++
		}

		switch {
		case predicted && real:
			tp++
		case predicted && !real:
			fp++
		case !predicted && !real:
			tn++
		default:
			fn++
		}
	}

	return confusion(tp, fp, tn, fn, realTrue, realFalse)
}

func withIdentityLabels(classMapping map[string]int) map[string]int {
	mapping := map[string]int{"0": 0, "1": 1, "false": 0, "true": 1}
	for label, v := range classMapping {
		mapping[label] = v
	}
	return mapping
}

// mappedClass converts a label to its boolean class; ok is false for unmapped labels
func mappedClass(v interface{}, mapping map[string]int) (bool, bool) {
	key, ok := labelKey(v)
	if !ok {
		return false, false
	}
	mapped, ok := mapping[key]
	if !ok {
		return false, false
	}
	return mapped != 0, true
}

// MulticlassVariables counts correct and incorrect predictions.
// Without a negative class tn equals tp and fn equals fp.
func MulticlassVariables(logs []models.ModelLog, correct CorrectnessFunc) Variables {
	var ok int
	for _, log := range logs {
		if correct(log) {
			ok++
		}
	}
	wrong := len(logs) - ok
	return confusion(ok, wrong, ok, wrong, len(logs), len(logs))
}

// MultilabelVariables counts the aggregate confusion matrix over the union of
// labels seen in the batch and returns the per-label matrices alongside it.
func MultilabelVariables(logs []models.ModelLog) (Variables, map[string]Variables) {
	type counts struct{ tp, fp, fn int }

	perLabel := make(map[string]*counts)
	get := func(label string) *counts {
		c, ok := perLabel[label]
		if !ok {
			c = &counts{}
			perLabel[label] = c
		}
		return c
	}

	for _, log := range logs {
		predicted := labelSet(log.Actual["modelClass"])
		real := labelSet(log.Actual["class"])

		for label := range predicted {
			if real[label] {
				get(label).tp++
			} else {
				get(label).fp++
			}
		}
		for label := range real {
			if !predicted[label] {
				get(label).fn++
			}
		}
	}

	n := len(logs)
	labels := make(map[string]Variables, len(perLabel))
	var tp, fp, fn int
	for label, c := range perLabel {
		tp += c.tp
		fp += c.fp
		fn += c.fn
		tn := n - c.tp - c.fp - c.fn
		labels[label] = confusion(c.tp, c.fp, tn, c.fn, c.tp+c.fn, tn+c.fp)
	}

	tn := n*len(perLabel) - tp - fp - fn
	return confusion(tp, fp, tn, fn, tp+fn, tn+fp), labels
}

// LanguageVariables averages the pre-scored quality fields of generation logs.
// Fields missing from a log are skipped; an empty field averages to 0.
func LanguageVariables(logs []models.ModelLog) Variables {
	var relevance, coherence, accuracy runningMean
	for _, log := range logs {
		if v, ok := number(log.Actual["relevance"]); ok {
			relevance.add(v / 10)
		}
		if v, ok := number(log.Actual["coherence"]); ok {
			coherence.add(v / 10)
		}
		if v, ok := number(log.Actual["correct"]); ok {
			accuracy.add(v)
		}
	}

	return Variables{
		Relevance: relevance.value(),
		Coherence: coherence.value(),
		Accuracy:  accuracy.value(),
	}
}

type runningMean struct {
	sum   float64
	count int
}

func (m *runningMean) add(v float64) {
	m.sum += v
	m.count++
}

func (m *runningMean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// labelKey normalizes a class label to the string form used by mappings
func labelKey(v interface{}) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		return value, true
	case bool:
		return strconv.FormatBool(value), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32), true
	case int:
		return strconv.Itoa(value), true
	case int32:
		return strconv.FormatInt(int64(value), 10), true
	case int64:
		return strconv.FormatInt(value, 10), true
	default:
		return fmt.Sprint(value), true
	}
}

// labelSet reads a label list of any slice type; a scalar is a one-label set
func labelSet(v interface{}) map[string]bool {
	set := make(map[string]bool)
	if v == nil {
		return set
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		if key, ok := labelKey(v); ok && key != "" {
			set[key] = true
		}
		return set
	}

	for i := 0; i < rv.Len(); i++ {
		if key, ok := labelKey(rv.Index(i).Interface()); ok && key != "" {
			set[key] = true
		}
	}
	return set
}

// number reads a numeric or boolean field
func number(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
