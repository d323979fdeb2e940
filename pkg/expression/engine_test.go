package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine_Evaluate(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		expr     string
		env      map[string]interface{}
		expected interface{}
		wantErr  bool
	}{
		{
			name:     "Simple Math",
			expr:     "1 + 1",
			env:      nil,
			expected: 2,
		},
		{
			name:     "Field Comparison",
			expr:     "amount <= 100",
			env:      map[string]interface{}{"amount": 50},
			expected: true,
		},
		{
			name:     "String Equality",
			expr:     "department == 'finance'",
			env:      map[string]interface{}{"department": "finance"},
			expected: true,
		},
		{
			name:     "Membership",
			expr:     "status in ['draft', 'submitted']",
			env:      map[string]interface{}{"status": "submitted"},
			expected: true,
		},
		{
			name:    "Syntax Error",
			expr:    "amount <=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Evaluate(tt.expr, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestEngine_EvaluateBool(t *testing.T) {
	e := NewEngine()

	result, err := e.EvaluateBool("amount > 500", map[string]interface{}{"amount": 1000})
	assert.NoError(t, err)
	assert.True(t, result)

	// Non-boolean results are errors, not truthy values
	_, err = e.EvaluateBool("amount + 1", map[string]interface{}{"amount": 1})
	assert.Error(t, err)
}

func TestEngine_Validate(t *testing.T) {
	e := NewEngine()

	assert.NoError(t, e.Validate("amount >= 100"))
	assert.Error(t, e.Validate("amount >= "))
}

func TestEngine_ProgramCache(t *testing.T) {
	e := NewEngine()

	// Same expression against different envs must reuse the cached program
	r1, err := e.EvaluateBool("total > limit", map[string]interface{}{"total": 10, "limit": 5})
	assert.NoError(t, err)
	assert.True(t, r1)

	r2, err := e.EvaluateBool("total > limit", map[string]interface{}{"total": 1, "limit": 5})
	assert.NoError(t, err)
	assert.False(t, r2)

	assert.Len(t, e.programCache, 1)
}
