package antenna

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when tuning a link which is not open or has been closed
	ErrNotOpen = errors.New("antenna link is not open")

	// ErrFrameTooLong is reported when an unterminated response exceeds MaxFrameSize
	ErrFrameTooLong = errors.New("response frame too long")
)

const (
	// FrameDecodeFailure means a received chunk was not valid UTF-8 text
	FrameDecodeFailure FrameErrorKind = "decode"
	// FrameParseFailure means a terminated frame did not match the RSSI grammar
	FrameParseFailure FrameErrorKind = "parse"
)

type FrameErrorKind string

// LinkOpenError is returned when the serial port cannot be opened.
// The link is unusable; callers should disable tuning rather than retry.
type LinkOpenError struct {
	Port string
	Err  error
}

func (e *LinkOpenError) Error() string {
	return fmt.Sprintf("antenna: opening port '%s': %s", e.Port, e.Err)
}

func (e *LinkOpenError) Unwrap() error {
	return e.Err
}

// FrameError is a per-message failure. It is never returned from link methods,
// only passed to readError subscribers.
type FrameError struct {
	Kind FrameErrorKind
	Data []byte // the offending chunk or frame
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("antenna: frame %s error: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("antenna: frame %s error", e.Kind)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
