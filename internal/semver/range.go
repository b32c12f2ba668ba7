package semver

import (
	"fmt"
	"strings"
)

// FloatBehavior selects which satisfying version a range resolves to.
type FloatBehavior int

const (
	// FloatNone resolves to the lowest satisfying version.
	FloatNone FloatBehavior = iota
	// FloatAbsoluteLatest resolves to the highest satisfying version.
	FloatAbsoluteLatest
)

func (f FloatBehavior) String() string {
	switch f {
	case FloatNone:
		return "none"
	case FloatAbsoluteLatest:
		return "absolute-latest"
	default:
		return fmt.Sprintf("FloatBehavior(%d)", int(f))
	}
}

// Range is a constraint over versions in NuGet interval notation.
//
// A side without a bound (HasMin or HasMax false) is open-ended.
type Range struct {
	Min          Version
	Max          Version
	HasMin       bool
	HasMax       bool
	MinInclusive bool
	MaxInclusive bool
	Float        FloatBehavior
}

// Unbounded returns the range matching every version, floating to the
// absolute latest one.
func Unbounded() Range {
	return Range{Float: FloatAbsoluteLatest}
}

// ParseRange parses a NuGet version range:
//
//	1.0          x >= 1.0
//	[1.0]        x == 1.0
//	(1.0,)       x > 1.0
//	[1.0,2.0)    1.0 <= x < 2.0
//	(,2.0]       x <= 2.0
//	1.*          1.0.0 <= x < 2.0.0
//	* or empty   any version
//
// The returned range has FloatNone; callers pick the float behavior.
func ParseRange(raw string) (Range, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "*" {
		return Range{}, nil
	}

	switch {
	case strings.HasPrefix(s, "[") || strings.HasPrefix(s, "("):
		return parseInterval(raw, s)
	case strings.HasSuffix(s, ".*"):
		return parseFloating(raw, strings.TrimSuffix(s, ".*"))
	default:
		lo, err := Parse(s)
		if err != nil {
			return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
		}
		return Range{Min: lo, HasMin: true, MinInclusive: true}, nil
	}
}

func MustParseRange(raw string) Range {
	r, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return r
}

func parseInterval(raw, s string) (Range, error) {
	if len(s) < 2 || !strings.HasSuffix(s, "]") && !strings.HasSuffix(s, ")") {
		return Range{}, fmt.Errorf("semver: parse range %q: unterminated interval", raw)
	}
	r := Range{
		MinInclusive: s[0] == '[',
		MaxInclusive: s[len(s)-1] == ']',
	}
	inner := s[1 : len(s)-1]

	lower, upper, hasComma := strings.Cut(inner, ",")
	if !hasComma {
		// [1.0] is an exact match; (1.0) matches nothing.
		if !r.MinInclusive || !r.MaxInclusive {
			return Range{}, fmt.Errorf("semver: parse range %q: exact version must use []", raw)
		}
		upper = lower
	}
	lower, upper = strings.TrimSpace(lower), strings.TrimSpace(upper)

	if lower != "" {
		v, err := Parse(lower)
		if err != nil {
			return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
		}
		r.Min, r.HasMin = v, true
	}
	if upper != "" {
		v, err := Parse(upper)
		if err != nil {
			return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
		}
		r.Max, r.HasMax = v, true
	}

	if r.HasMin && r.HasMax {
		c := Compare(r.Min, r.Max)
		if c > 0 || c == 0 && (!r.MinInclusive || !r.MaxInclusive) {
			return Range{}, fmt.Errorf("semver: parse range %q: empty interval", raw)
		}
	}
	return r, nil
}

func parseFloating(raw, prefix string) (Range, error) {
	parts := strings.Split(prefix, ".")
	if len(parts) > 3 {
		return Range{}, fmt.Errorf("semver: parse range %q: too many components", raw)
	}
	lo, err := Parse(prefix)
	if err != nil {
		return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
	}

	var hi Version
	switch len(parts) {
	case 1:
		hi = lo.IncMajor()
	case 2:
		hi = lo.IncMinor()
	default:
		hi = lo.IncPatch()
	}
	return Range{
		Min: lo, HasMin: true, MinInclusive: true,
		Max: hi, HasMax: true,
	}, nil
}

// WithFloat returns a copy of r using the given float behavior.
func (r Range) WithFloat(f FloatBehavior) Range {
	r.Float = f
	return r
}

// Satisfies reports whether v lies inside the range bounds.
func (r Range) Satisfies(v Version) bool {
	if v.IsZero() {
		return false
	}
	if r.HasMin {
		c := Compare(v, r.Min)
		if c < 0 || c == 0 && !r.MinInclusive {
			return false
		}
	}
	if r.HasMax {
		c := Compare(v, r.Max)
		if c > 0 || c == 0 && !r.MaxInclusive {
			return false
		}
	}
	return true
}

// String renders the range in NuGet interval notation.
func (r Range) String() string {
	if !r.HasMin && !r.HasMax {
		return "(, )"
	}
	if r.HasMin && r.HasMax && r.MinInclusive && r.MaxInclusive && Equal(r.Min, r.Max) {
		return "[" + r.Min.String() + "]"
	}

	var b strings.Builder
	if r.MinInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.HasMin {
		b.WriteString(r.Min.String())
	}
	b.WriteString(", ")
	if r.HasMax {
		b.WriteString(r.Max.String())
	}
	if r.MaxInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
