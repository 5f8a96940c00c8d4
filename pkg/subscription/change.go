package subscription

import "fmt"

// ChangeKind classifies a change at a source.
type ChangeKind uint8

const (
	// ChangeCarried is a value-only change.
	ChangeCarried ChangeKind = iota + 1
	// ChangeStructural is a shape change, e.g. a list insert or remove.
	ChangeStructural
	// ChangeKeyed is a change to one keyed part of a composite value.
	ChangeKeyed
)

// String returns the human-readable name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCarried:
		return "Carried"
	case ChangeStructural:
		return "Structural"
	case ChangeKeyed:
		return "Keyed"
	default:
		return "Unknown"
	}
}

// Change describes one change at a source.
type Change struct {
	Kind ChangeKind
	// Key is set only for ChangeKeyed.
	Key string
}

// Carried returns a value-only change.
func Carried() Change { return Change{Kind: ChangeCarried} }

// Structural returns a shape change.
func Structural() Change { return Change{Kind: ChangeStructural} }

// Keyed returns a change tagged with key k.
func Keyed(k string) Change { return Change{Kind: ChangeKeyed, Key: k} }

// String returns the change formatted for logs.
func (c Change) String() string {
	if c.Kind == ChangeKeyed {
		return fmt.Sprintf("Keyed(%s)", c.Key)
	}
	return c.Kind.String()
}

// SelectorKind classifies a selector.
type SelectorKind uint8

const (
	SelectEverything SelectorKind = iota + 1
	SelectStructural
	SelectCarried
	SelectKey
)

// Selector decides which changes at a source trigger a target.
// The zero Selector is invalid; use one of the constructors.
type Selector struct {
	Kind SelectorKind
	// Key is set only for SelectKey.
	Key string
}

// Everything matches every change.
func Everything() Selector { return Selector{Kind: SelectEverything} }

// StructuralOnly matches only structural changes.
func StructuralOnly() Selector { return Selector{Kind: SelectStructural} }

// CarriedOnly matches only value-only changes.
func CarriedOnly() Selector { return Selector{Kind: SelectCarried} }

// Key matches only changes tagged with key k.
func Key(k string) Selector { return Selector{Kind: SelectKey, Key: k} }

// Valid reports whether s was built by one of the constructors.
func (s Selector) Valid() bool {
	return s.Kind >= SelectEverything && s.Kind <= SelectKey
}

// Matches reports whether change c triggers a target subscribed with s.
func (s Selector) Matches(c Change) bool {
	switch s.Kind {
	case SelectEverything:
		return true
	case SelectStructural:
		return c.Kind == ChangeStructural
	case SelectCarried:
		return c.Kind == ChangeCarried
	case SelectKey:
		return c.Kind == ChangeKeyed && c.Key == s.Key
	default:
		return false
	}
}

// MatchFirst returns the first change in cs matched by s.
func (s Selector) MatchFirst(cs []Change) (Change, bool) {
	for _, c := range cs {
		if s.Matches(c) {
			return c, true
		}
	}
	return Change{}, false
}

// String returns the selector formatted for logs.
func (s Selector) String() string {
	switch s.Kind {
	case SelectEverything:
		return "Everything"
	case SelectStructural:
		return "StructuralOnly"
	case SelectCarried:
		return "CarriedOnly"
	case SelectKey:
		return fmt.Sprintf("Key(%s)", s.Key)
	default:
		return "Invalid"
	}
}
