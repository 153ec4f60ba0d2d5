package antenna

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

const (
	// FrameTerminator ends every command and response frame
	FrameTerminator = '\n'

	// MaxFrameSize bounds an unterminated response; longer input is discarded
	MaxFrameSize = 256

	tuneCommand = "#SET "
)

// rssiPattern matches "anything, a space, digits", e.g. "#RSSI 123".
var rssiPattern = regexp.MustCompile(`^.* (\d+)`)

// EncodeTune builds the tune command frame for f. The peer firmware expects
// every character of "#SET <f>" separated by a comma, so "400" is sent as
// "#,S,E,T, ,4,0,0\n".
func EncodeTune(f spectrum.Frequency) []byte {
	chars := strings.Split(tuneCommand+f.String(), "")
	return []byte(strings.Join(chars, ",") + string(FrameTerminator))
}

// ParseRSSI extracts the RSSI digit run from a response frame. The value is
// returned verbatim and is not converted to a number.
func ParseRSSI(frame string) (string, error) {
	m := rssiPattern.FindStringSubmatch(frame)
	if m == nil {
		return "", fmt.Errorf("no RSSI value in %q", frame)
	}
	return m[1], nil
}
