package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Button is a transition action offered on a step's form.
type Button string

const (
	ButtonNext     Button = "next"
	ButtonPrevious Button = "previous"
	ButtonCheck    Button = "check"
	ButtonComplete Button = "complete"
	ButtonCancel   Button = "cancel"
	ButtonSuspend  Button = "suspend"
)

// Buttons lists the buttons in storage order.
var Buttons = []Button{
	ButtonNext,
	ButtonPrevious,
	ButtonCheck,
	ButtonComplete,
	ButtonCancel,
	ButtonSuspend,
}

// ButtonFromString parses a button name.
func ButtonFromString(name string) (Button, error) {
	for _, button := range Buttons {
		if string(button) == name {
			return button, nil
		}
	}

	return "", fmt.Errorf("unknown button %q", name)
}

func (b Button) index() int {
	for i, button := range Buttons {
		if button == b {
			return i
		}
	}

	return -1
}

// ButtonSet is the set of enabled buttons of a step plus its default button.
//
// Its storage form is a 7 character string: one 0/1 flag per button in
// Buttons order, followed by the 1-based index of the default button, 0 when
// there is none. "0000000" is the empty set.
type ButtonSet struct {
	enabled uint8
	def     Button
}

// NewButtonSet enables the given buttons. def may be empty.
func NewButtonSet(def Button, enabled ...Button) ButtonSet {
	var set ButtonSet

	for _, button := range enabled {
		set = set.With(button)
	}

	set.def = def

	return set
}

// Has reports whether b is enabled.
func (s ButtonSet) Has(b Button) bool {
	idx := b.index()
	if idx < 0 {
		return false
	}

	return s.enabled&(1<<idx) != 0
}

// With returns a copy of s with b enabled.
func (s ButtonSet) With(b Button) ButtonSet {
	if idx := b.index(); idx >= 0 {
		s.enabled |= 1 << idx
	}

	return s
}

// Without returns a copy of s with b disabled.
func (s ButtonSet) Without(b Button) ButtonSet {
	if idx := b.index(); idx >= 0 {
		s.enabled &^= 1 << idx
	}

	return s
}

// Default returns the default button, empty when none is set.
func (s ButtonSet) Default() Button {
	return s.def
}

// Enabled returns the enabled buttons in storage order.
func (s ButtonSet) Enabled() []Button {
	enabled := make([]Button, 0, len(Buttons))

	for _, button := range Buttons {
		if s.Has(button) {
			enabled = append(enabled, button)
		}
	}

	return enabled
}

// String returns the storage form.
func (s ButtonSet) String() string {
	var sb strings.Builder

	for _, button := range Buttons {
		if s.Has(button) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	sb.WriteString(strconv.Itoa(s.def.index() + 1))

	return sb.String()
}

// ParseButtonSet decodes the storage form. The empty string is the empty set.
func ParseButtonSet(storage string) (ButtonSet, error) {
	var set ButtonSet

	if storage == "" {
		return set, nil
	}

	if len(storage) != len(Buttons)+1 {
		return set, fmt.Errorf("invalid button storage %q: expected %d characters", storage, len(Buttons)+1)
	}

	for i, button := range Buttons {
		switch storage[i] {
		case '1':
			set = set.With(button)
		case '0':
		default:
			return ButtonSet{}, fmt.Errorf("invalid button storage %q: flag %d is %q", storage, i, storage[i])
		}
	}

	def := int(storage[len(Buttons)] - '0')
	if def < 0 || def > len(Buttons) {
		return ButtonSet{}, fmt.Errorf("invalid button storage %q: default index %d", storage, def)
	}

	if def > 0 {
		set.def = Buttons[def-1]
	}

	return set, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s ButtonSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ButtonSet) UnmarshalText(text []byte) error {
	set, err := ParseButtonSet(string(text))
	if err != nil {
		return err
	}

	*s = set

	return nil
}
