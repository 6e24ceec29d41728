package mocks

import (
	"context"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRuleEvaluator is a mock implementation of process.RuleEvaluator.
type MockRuleEvaluator struct {
	mock.Mock
}

func (m *MockRuleEvaluator) Evaluate(ctx context.Context, ruleID string, record *models.Record) (string, error) {
	args := m.Called(ctx, ruleID, record)

	return args.String(0), args.Error(1)
}

func (m *MockRuleEvaluator) Selects(ruleID string) (bool, bool) {
	args := m.Called(ruleID)

	return args.Bool(0), args.Bool(1)
}
