package recipe

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform is one parsed text-transform step. Steps are declared as strings
// in recipe files ("trim:", "replace:a|b", "pattern->replacement") and parsed
// once at load time into these variants.
type Transform interface {
	Apply(s string) string
}

// TrimTransform trims whitespace, or a custom cutset when given.
type TrimTransform struct {
	Cutset string
}

func (t TrimTransform) Apply(s string) string {
	if t.Cutset == "" {
		return strings.TrimSpace(s)
	}
	return strings.Trim(s, t.Cutset)
}

// ReplaceTransform does a literal string replacement.
type ReplaceTransform struct {
	Old string
	New string
}

func (t ReplaceTransform) Apply(s string) string {
	return strings.ReplaceAll(s, t.Old, t.New)
}

// RegexTransform rewrites every match of a compiled pattern.
type RegexTransform struct {
	Pattern     *regexp.Regexp
	Replacement string
}

func (t RegexTransform) Apply(s string) string {
	return t.Pattern.ReplaceAllString(s, t.Replacement)
}

// ParseTransforms parses the declared steps in order. Unknown steps are a
// load-time error rather than a silent no-op.
func ParseTransforms(steps []string) ([]Transform, error) {
	out := make([]Transform, 0, len(steps))
	for _, step := range steps {
		t, err := parseTransform(step)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseTransform(step string) (Transform, error) {
	switch {
	case step == "trim:" || step == "trim":
		return TrimTransform{}, nil

	case strings.HasPrefix(step, "trim:"):
		return TrimTransform{Cutset: strings.TrimPrefix(step, "trim:")}, nil

	case strings.HasPrefix(step, "replace:"):
		spec := strings.TrimPrefix(step, "replace:")
		parts := strings.SplitN(spec, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("replace transform %q needs old|new", step)
		}
		return ReplaceTransform{Old: parts[0], New: parts[1]}, nil

	case strings.HasPrefix(step, "regex:"):
		spec := strings.TrimPrefix(step, "regex:")
		parts := strings.SplitN(spec, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("regex transform %q needs pattern|replacement", step)
		}
		re, err := regexp.Compile(parts[0])
		if err != nil {
			return nil, fmt.Errorf("regex transform %q: %w", step, err)
		}
		return RegexTransform{Pattern: re, Replacement: parts[1]}, nil

	case strings.Contains(step, "->"):
		parts := strings.SplitN(step, "->", 2)
		re, err := regexp.Compile(parts[0])
		if err != nil {
			return nil, fmt.Errorf("pattern transform %q: %w", step, err)
		}
		return RegexTransform{Pattern: re, Replacement: parts[1]}, nil
	}
	return nil, fmt.Errorf("unknown transform step %q", step)
}

// ApplyTransforms runs a parsed chain over a value in declared order.
func ApplyTransforms(s string, chain []Transform) string {
	for _, t := range chain {
		s = t.Apply(s)
	}
	return s
}
