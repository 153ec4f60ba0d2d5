package spectrum

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyList is returned when a frequency list has no entries
	ErrEmptyList = errors.New("frequency list is empty")

	// ErrNotIncreasing is returned when a frequency list is not strictly increasing
	ErrNotIncreasing = errors.New("frequency list is not strictly increasing")
)

// Frequency is a frequency in MHz carried in its canonical string form.
// Two frequencies are equal iff their strings are equal, so callers should only
// build them with NewFrequency or ParseFrequency.
type Frequency string

// NewFrequency returns the canonical form of v.
func NewFrequency(v int64) Frequency {
	return Frequency(strconv.FormatInt(v, 10))
}

// ParseFrequency parses s as a base-10 integer and returns its canonical form,
// so "0400", " 400" and "+400" all become "400".
func ParseFrequency(s string) (Frequency, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid frequency '%s': %w", s, err)
	}
	if v < 0 {
		return "", fmt.Errorf("invalid frequency '%s': must not be negative", s)
	}
	return NewFrequency(v), nil
}

// MustParseFrequency is like ParseFrequency but panics on error.
func MustParseFrequency(s string) Frequency {
	f, err := ParseFrequency(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Value returns the numeric value of the frequency.
func (f Frequency) Value() (int64, error) {
	return strconv.ParseInt(string(f), 10, 64)
}

func (f Frequency) String() string {
	return string(f)
}

func (f *Frequency) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseFrequency(value.Value)
	if err != nil {
		return fmt.Errorf("spectrum.Frequency: %w", err)
	}

	*f = parsed
	return nil
}

// IsZero reports whether no frequency is set.
func (f Frequency) IsZero() bool {
	return f == ""
}

// FrequencyList is an ordered list of frequencies, strictly increasing by value.
type FrequencyList []Frequency

// ParseFrequencyList parses and canonicalizes every entry of values.
func ParseFrequencyList(values ...string) (FrequencyList, error) {
	list := make(FrequencyList, 0, len(values))
	for _, v := range values {
		f, err := ParseFrequency(v)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, nil
}

// Validate checks that the list is non-empty, numeric and strictly increasing.
func (l FrequencyList) Validate() error {
	if len(l) == 0 {
		return ErrEmptyList
	}

	var prev int64
	for i, f := range l {
		v, err := f.Value()
		if err != nil {
			return fmt.Errorf("entry %d: invalid frequency '%s'", i, f)
		}
		if i > 0 && v <= prev {
			return fmt.Errorf("%w: %d follows %d at entry %d", ErrNotIncreasing, v, prev, i)
		}
		prev = v
	}
	return nil
}

// Index returns the position of f in the list or -1.
func (l FrequencyList) Index(f Frequency) int {
	return slices.Index(l, f)
}

// Clone returns a copy of the list which does not share its backing array.
func (l FrequencyList) Clone() FrequencyList {
	return slices.Clone(l)
}

// Strings returns the list as plain strings.
func (l FrequencyList) Strings() []string {
	s := make([]string, len(l))
	for i, f := range l {
		s[i] = string(f)
	}
	return s
}

// maxStepListLen bounds the size of a synthesised scan list
const maxStepListLen = 1 << 20

// StepList builds the arithmetic sequence [min, max) with the given stride.
func StepList(min, max, step int64) (FrequencyList, error) {
	if step <= 0 {
		return nil, fmt.Errorf("invalid step: %d, must be positive", step)
	}
	if max <= min {
		return nil, fmt.Errorf("invalid range: max %d must be greater than min %d", max, min)
	}

	span := uint64(max) - uint64(min)
	n := span / uint64(step)
	if span%uint64(step) != 0 {
		n++
	}
	if n > maxStepListLen {
		return nil, fmt.Errorf("invalid range: %d..%d by %d yields more than %d frequencies", min, max, step, maxStepListLen)
	}

	list := make(FrequencyList, 0, n)
	for i := uint64(0); i < n; i++ {
		list = append(list, NewFrequency(int64(uint64(min)+i*uint64(step))))
	}
	return list, nil
}
