package scan

import (
	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// StartIndex returns the list position a scan resumes from, given the frequency
// the station is currently tuned to:
//
//   - current is in the list: the position right after it
//   - otherwise: the first entry whose value is >= current
//   - current is above every entry, or cannot be parsed: 0
//
// A position past the end of the list wraps to 0.
func StartIndex(list spectrum.FrequencyList, current spectrum.Frequency) int {
	if i := list.Index(current); i >= 0 {
		return wrap(i+1, len(list))
	}
	return wrap(indexAtOrAbove(list, current), len(list))
}

// indexAtOrAbove scans linearly from the front. Running past the last entry
// restarts the cycle instead of failing.
func indexAtOrAbove(list spectrum.FrequencyList, current spectrum.Frequency) int {
	cv, err := current.Value()
	if err != nil {
		return 0
	}

	for i, f := range list {
		v, err := f.Value()
		if err != nil {
			continue
		}
		if v >= cv {
			return i
		}
	}
	return 0
}

func wrap(i, n int) int {
	if n == 0 || i >= n {
		return 0
	}
	return i
}
