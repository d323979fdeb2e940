package services

import (
	"fmt"
	"log"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/pkg/constants"
	"github.com/nexusflow/backend/pkg/expression"
)

// ConditionEvaluator evaluates auto-approval conditions against entity
// snapshots. It compiles each comparator to a fixed two-variable expression
// so the program cache stays one entry per comparator regardless of how
// many templates exist.
//
// Evaluation is conservative: a missing field, an unknown comparator, or a
// type mismatch is a no-match, never an error. A workflow must not
// auto-approve because its condition was malformed.
type ConditionEvaluator struct {
	engine *expression.Engine
}

var _ ports.ConditionEvaluator = (*ConditionEvaluator)(nil)

// NewConditionEvaluator creates a new ConditionEvaluator
func NewConditionEvaluator(engine *expression.Engine) *ConditionEvaluator {
	return &ConditionEvaluator{engine: engine}
}

// comparator expressions, keyed by the comparator constants
var comparatorExprs = map[string]string{
	constants.ComparatorEq: "actual == expected",
	constants.ComparatorNe: "actual != expected",
	constants.ComparatorGt: "actual > expected",
	constants.ComparatorLt: "actual < expected",
	constants.ComparatorGe: "actual >= expected",
	constants.ComparatorLe: "actual <= expected",
	constants.ComparatorIn: "actual in expected",
}

// Matches reports whether the condition holds against the snapshot
func (e *ConditionEvaluator) Matches(cond *models.Condition, snapshot models.FieldMap) bool {
	if cond == nil {
		return false
	}

	exprStr, ok := comparatorExprs[cond.Op]
	if !ok {
		log.Printf("⚠️ Unknown condition comparator %q on field %q, treating as no-match", cond.Op, cond.Field)
		return false
	}

	actual, ok := snapshot[cond.Field]
	if !ok {
		return false
	}

	env := map[string]interface{}{
		"actual":   actual,
		"expected": cond.Value,
	}

	matched, err := e.engine.EvaluateBool(exprStr, env)
	if err != nil {
		// Type mismatches land here (e.g. comparing a string with >)
		log.Printf("⚠️ Condition on field %q failed to evaluate: %v, treating as no-match", cond.Field, err)
		return false
	}
	return matched
}

// ValidateCondition checks a condition at template save time. Unlike
// Matches, save-time problems are reported to the caller so a bad template
// never reaches the engine.
func ValidateCondition(cond *models.Condition) error {
	if cond == nil {
		return nil
	}
	if cond.Field == "" {
		return fmt.Errorf("condition field must not be empty")
	}
	if _, ok := comparatorExprs[cond.Op]; !ok {
		return fmt.Errorf("unknown comparator: %s", cond.Op)
	}
	if cond.Op == constants.ComparatorIn {
		if _, ok := cond.Value.([]interface{}); !ok {
			return fmt.Errorf("comparator 'in' requires a list value")
		}
	}
	return nil
}
