package options

import (
	"fmt"
	"strconv"
	"strings"
)

// BindingKind is the trigger type of one activator alternative
type BindingKind int

const (
	KindKey BindingKind = iota
	KindModifier
	KindButton
	KindGesture
	KindHotspot
)

func (k BindingKind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindModifier:
		return "modifier"
	case KindButton:
		return "button"
	case KindGesture:
		return "gesture"
	case KindHotspot:
		return "hotspot"
	default:
		return "unknown"
	}
}

var knownModifiers = map[string]bool{
	"shift": true,
	"ctrl":  true,
	"alt":   true,
	"super": true,
	"logo":  true,
	"altgr": true,
}

var hotspotEdges = map[string]bool{
	"top":          true,
	"bottom":       true,
	"left":         true,
	"right":        true,
	"top-left":     true,
	"top-right":    true,
	"bottom-left":  true,
	"bottom-right": true,
}

var gestureTypes = map[string]bool{
	"swipe":      true,
	"edge-swipe": true,
	"pinch":      true,
}

// Binding is one alternative of an activator binding
type Binding struct {
	Kind      BindingKind
	Modifiers []string // Sorted, without angle brackets
	Code      string   // KEY_* or BTN_*

	// Gestures
	Gesture   string // swipe, edge-swipe or pinch
	Direction string
	Fingers   int

	// Hotspots
	Edge    string
	Along   int
	Away    int
	Timeout int
}

// ActivatorBinding is a set of alternatives, any of which activates
type ActivatorBinding struct {
	Alternatives []Binding
}

// ParseBinding parses a single alternative such as "<super> KEY_E",
// "<alt> BTN_LEFT", "swipe up 3" or "hotspot top 100 200".
func ParseBinding(s string) (Binding, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Binding{}, fmt.Errorf("empty binding")
	}

	switch {
	case fields[0] == "hotspot":
		return parseHotspot(fields[1:])
	case gestureTypes[fields[0]]:
		return parseGesture(fields)
	}

	var b Binding
	for i, f := range fields {
		if strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">") {
			mod := strings.ToLower(strings.Trim(f, "<>"))
			if !knownModifiers[mod] {
				return Binding{}, fmt.Errorf("unknown modifier %q", f)
			}
			b.Modifiers = insertSorted(b.Modifiers, mod)
			continue
		}

		if i != len(fields)-1 {
			return Binding{}, fmt.Errorf("unexpected %q before end of binding", f)
		}
		switch {
		case strings.HasPrefix(f, "KEY_"):
			b.Kind = KindKey
		case strings.HasPrefix(f, "BTN_"):
			b.Kind = KindButton
		default:
			return Binding{}, fmt.Errorf("invalid key or button %q", f)
		}
		b.Code = f
		return b, nil
	}

	// Only modifiers
	b.Kind = KindModifier
	return b, nil
}

func parseHotspot(args []string) (Binding, error) {
	if len(args) != 3 {
		return Binding{}, fmt.Errorf("hotspot needs an edge, a size and a timeout")
	}
	if !hotspotEdges[args[0]] {
		return Binding{}, fmt.Errorf("invalid hotspot edge %q", args[0])
	}

	b := Binding{Kind: KindHotspot, Edge: args[0]}

	along, away, found := strings.Cut(args[1], "x")
	var err error
	if b.Along, err = strconv.Atoi(along); err != nil || b.Along <= 0 {
		return Binding{}, fmt.Errorf("invalid hotspot size %q", args[1])
	}
	b.Away = b.Along
	if found {
		if b.Away, err = strconv.Atoi(away); err != nil || b.Away <= 0 {
			return Binding{}, fmt.Errorf("invalid hotspot size %q", args[1])
		}
	}

	if b.Timeout, err = strconv.Atoi(args[2]); err != nil || b.Timeout < 0 {
		return Binding{}, fmt.Errorf("invalid hotspot timeout %q", args[2])
	}
	return b, nil
}

func parseGesture(fields []string) (Binding, error) {
	if len(fields) != 3 {
		return Binding{}, fmt.Errorf("gesture needs a type, a direction and a finger count")
	}

	b := Binding{Kind: KindGesture, Gesture: fields[0], Direction: fields[1]}
	switch b.Gesture {
	case "pinch":
		if b.Direction != "in" && b.Direction != "out" {
			return Binding{}, fmt.Errorf("invalid pinch direction %q", b.Direction)
		}
	default:
		for _, part := range strings.Split(b.Direction, "-") {
			switch part {
			case "up", "down", "left", "right":
			default:
				return Binding{}, fmt.Errorf("invalid swipe direction %q", b.Direction)
			}
		}
	}

	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 2 {
		return Binding{}, fmt.Errorf("invalid finger count %q", fields[2])
	}
	b.Fingers = n
	return b, nil
}

// ParseActivator parses "|"-separated alternatives. "none" and the empty
// string give a binding that never activates.
func ParseActivator(s string) (ActivatorBinding, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return ActivatorBinding{}, nil
	}

	var a ActivatorBinding
	for _, part := range strings.Split(s, "|") {
		b, err := ParseBinding(part)
		if err != nil {
			return ActivatorBinding{}, fmt.Errorf("invalid activator %q: %w", s, err)
		}
		a.Alternatives = append(a.Alternatives, b)
	}
	return a, nil
}

// String formats the binding back to its config syntax
func (b Binding) String() string {
	var parts []string
	for _, m := range b.Modifiers {
		parts = append(parts, "<"+m+">")
	}

	switch b.Kind {
	case KindKey, KindButton:
		parts = append(parts, b.Code)
	case KindGesture:
		parts = append(parts, b.Gesture, b.Direction, strconv.Itoa(b.Fingers))
	case KindHotspot:
		size := strconv.Itoa(b.Along)
		if b.Away != b.Along {
			size += "x" + strconv.Itoa(b.Away)
		}
		parts = append(parts, "hotspot", b.Edge, size, strconv.Itoa(b.Timeout))
	}
	return strings.Join(parts, " ")
}

// Equal reports whether both alternatives describe the same trigger
func (b Binding) Equal(o Binding) bool {
	return b.String() == o.String()
}

func (a ActivatorBinding) String() string {
	if len(a.Alternatives) == 0 {
		return "none"
	}
	parts := make([]string, len(a.Alternatives))
	for i, b := range a.Alternatives {
		parts[i] = b.String()
	}
	return strings.Join(parts, " | ")
}

// Matches reports whether any alternative equals b
func (a ActivatorBinding) Matches(b Binding) bool {
	for _, alt := range a.Alternatives {
		if alt.Equal(b) {
			return true
		}
	}
	return false
}

func insertSorted(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return list
		}
		if v > s {
			list = append(list, "")
			copy(list[i+1:], list[i:])
			list[i] = s
			return list
		}
	}
	return append(list, s)
}
