package models

// RuleKind is the lifecycle point a hook is bound to.
type RuleKind string

const (
	RuleKindStepOver RuleKind = "step_over"
	RuleKindBefore   RuleKind = "before"
	RuleKindCheck    RuleKind = "check"
	RuleKindUpdate   RuleKind = "update"
	RuleKindValidate RuleKind = "validate"
	RuleKindAfter    RuleKind = "after"
)

// RuleKinds lists every rule kind in lifecycle order.
var RuleKinds = []RuleKind{
	RuleKindStepOver,
	RuleKindBefore,
	RuleKindCheck,
	RuleKindUpdate,
	RuleKindValidate,
	RuleKindAfter,
}

// IsValid reports whether k is a known rule kind.
func (k RuleKind) IsValid() bool {
	for _, known := range RuleKinds {
		if k == known {
			return true
		}
	}

	return false
}

// ImplementationKind tells how a hook is executed.
type ImplementationKind string

const (
	ImplementationCode ImplementationKind = "code" // Method registered for the owner model
	ImplementationRule ImplementationKind = "rule" // Delegated to the rule evaluator
)

// HookDescriptor binds a unit of business logic to a step and a rule kind.
type HookDescriptor struct {
	ID                 string             `json:"id"`
	StepID             string             `json:"step_id"`
	RuleKind           RuleKind           `json:"rule_kind"           validate:"required,oneof=step_over before check update validate after"`
	ImplementationKind ImplementationKind `json:"implementation_kind" validate:"required,oneof=code rule"`
	Reference          string             `json:"reference"           validate:"required"`
	Sequence           int                `json:"sequence"`
}
