package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		processErr := persistence.NewProcessError("Process", "subscription", "state", persistence.ErrProcessNotFound)
		stepErr := persistence.NewStepError("DeleteStep", "step-1", persistence.ErrStepInUse)
		recordErr := persistence.NewRecordError("Load", "subscription", "42", persistence.ErrRecordNotFound)

		assert.True(t, persistence.IsProcessNotFound(processErr))
		assert.True(t, persistence.IsStepInUse(stepErr))
		assert.True(t, persistence.IsRecordNotFound(recordErr))
		assert.False(t, persistence.IsStepNotFound(stepErr))

		assert.True(t, errors.Is(stepErr, persistence.ErrStepInUse))
	})

	t.Run("record error contains context", func(t *testing.T) {
		err := persistence.NewRecordError("Save", "subscription", "42", persistence.ErrRecordNotFound)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "subscription/42")
		assert.Contains(t, err.Error(), "record not found")
	})

	t.Run("process error contains context", func(t *testing.T) {
		err := persistence.NewProcessError("SaveProcess", "contract", "stage", errors.New("boom"))

		assert.Contains(t, err.Error(), "contract.stage")
		assert.Contains(t, err.Error(), "boom")
	})
}
