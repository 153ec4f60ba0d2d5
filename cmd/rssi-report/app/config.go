package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath       string
	SessionID    int64
	OutputFile   string
	Format       ImageFormat
	ListSessions bool
	MinFrequency *spectrum.Frequency
	MaxFrequency *spectrum.Frequency
	MinTimestamp *time.Time
	MaxTimestamp *time.Time
	TimeZone     *time.Location
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		TimeZone: time.Local,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return NewConfigFromArgs(flag.CommandLine, os.Args[1:])
}

// NewConfigFromArgs parses args with fs. Without -list both the session id and
// the output file are required.
func NewConfigFromArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, minFreq, maxFreq, from, to, timeZone string
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 0, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.BoolVar(&c.ListSessions, "list", false, "List the sessions stored in the database and exit")
	fs.StringVar(&minFreq, "min-freq", "", "Lowest frequency to report, MHz")
	fs.StringVar(&maxFreq, "max-freq", "", "Highest frequency to report, MHz")
	fs.StringVar(&from, "from", "", "Report readings taken at or after this time (RFC 3339)")
	fs.StringVar(&to, "to", "", "Report readings taken at or before this time (RFC 3339)")
	fs.StringVar(&timeZone, "tz", "", "Time zone of the timestamps on the image, e.g. Europe/Kyiv")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.MinFrequency, err = parseOptionalFrequency(minFreq); err != nil {
		return nil, fmt.Errorf("min-freq: %w", err)
	}
	if c.MaxFrequency, err = parseOptionalFrequency(maxFreq); err != nil {
		return nil, fmt.Errorf("max-freq: %w", err)
	}
	if c.MinTimestamp, err = parseOptionalTime(from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if c.MaxTimestamp, err = parseOptionalTime(to); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	if timeZone != "" {
		if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
			return nil, fmt.Errorf("tz: %w", err)
		}
	}

	imageFormat = strings.ToLower(imageFormat)

	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.ListSessions {
		return c, nil
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseOptionalFrequency(s string) (*spectrum.Frequency, error) {
	if s == "" {
		return nil, nil
	}
	f, err := spectrum.ParseFrequency(s)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
