package process

import "github.com/dukex/stepwise/pkg/models"

// IsEnabled reports whether button is offered on step.
func IsEnabled(step *models.StepDescriptor, button models.Button) bool {
	return step.Buttons.Has(button)
}

// ButtonState is the set of buttons shown for a record's current step.
type ButtonState struct {
	Step    string          `json:"step"`
	Enabled []models.Button `json:"enabled"`
	Default models.Button   `json:"default,omitempty"`
}

// buttonState disables previous while the field has no history to go back
// to. A disabled default is not reported.
func buttonState(step *models.StepDescriptor, history *History, field string) ButtonState {
	set := step.Buttons
	if history.Len(field) == 0 {
		set = set.Without(models.ButtonPrevious)
	}

	state := ButtonState{
		Step:    step.TechnicalName,
		Enabled: set.Enabled(),
	}

	if def := set.Default(); set.Has(def) {
		state.Default = def
	}

	return state
}
