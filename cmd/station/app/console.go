package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
	"github.com/roman-kulish/antenna-station/internal/station"
)

var (
	// ErrNotLocal is returned for a manual control of a station which follows the bus
	ErrNotLocal = errors.New("station is listening to the bus, switch it to local mode first")

	// ErrUnknownCommand is returned for an unknown console command
	ErrUnknownCommand = errors.New("unknown command")

	errQuit = errors.New("quit")
)

const consoleHelp = `commands:
  list                         show all stations
  freq <station> <MHz>         set the frequency
  scan <station>               start or stop scanning
  mode <station> <mode>        set the scan mode: withinPreset or byStep
  delay <station> <duration>   set the scan delay, e.g. 3s
  step <station> <MHz>         set the byStep stride: 1, 5, 10 or 20
  local <station>              toggle local mode
  history <station>            show the recent frequencies
  sync <MHz> <preset>          stop all scans, set the frequency on every station of the preset
  stop-all                     stop all scans
  help                         show this help
  quit                         stop the application
`

// Console controls stations with line commands
type Console struct {
	group  *station.Group
	out    io.Writer
	logger *slog.Logger
}

// lockedWriter serializes command output and status updates of station goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.w.Write(p)
}

func NewConsole(group *station.Group, out io.Writer, logger *slog.Logger) *Console {
	return &Console{
		group:  group,
		out:    &lockedWriter{w: out},
		logger: logger,
	}
}

// Watch prints the status updates of every station
func (c *Console) Watch() {
	for _, s := range c.group.Stations() {
		s.OnStatus(c.status)
	}
}

func (c *Console) status(name, status string) {
	fmt.Fprintf(c.out, "[%s] %s\n", name, status)
}

// Run executes commands read from in until the input ends or quit is given
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	c.prompt()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %s\n", err.Error())
		}

		c.prompt()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("error reading console input: %w", err)
	}

	return nil
}

// Execute runs a single command line
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	command, args := strings.ToLower(fields[0]), fields[1:]
	c.logger.Debug("console command", slog.String("command", command), slog.Any("args", args))

	switch command {
	case "help", "?":
		fmt.Fprint(c.out, consoleHelp)
		return nil

	case "quit", "exit":
		return errQuit

	case "list", "ls":
		return c.list()

	case "stop-all":
		c.group.StopAll()
		fmt.Fprintln(c.out, "all scans stopped")
		return nil

	case "sync":
		if len(args) != 2 {
			return errors.New("usage: sync <MHz> <preset>")
		}
		f, err := spectrum.ParseFrequency(args[0])
		if err != nil {
			return err
		}
		return c.group.SyncFrequency(ctx, f, args[1])

	case "history":
		s, err := c.station(args)
		if err != nil {
			return err
		}
		return c.history(s)

	case "local":
		s, err := c.station(args)
		if err != nil {
			return err
		}
		s.ToggleLocalMode()
		fmt.Fprintln(c.out, s.Status())
		return nil
	}

	switch command {
	case "freq", "scan", "mode", "delay", "step":
	default:
		return fmt.Errorf("%w '%s', type help for the list of commands", ErrUnknownCommand, command)
	}

	s, err := c.station(args)
	if err != nil {
		return err
	}
	if !s.Local() {
		return fmt.Errorf("station '%s': %w", s.Name(), ErrNotLocal)
	}

	switch command {
	case "freq":
		if len(args) != 2 {
			return errors.New("usage: freq <station> <MHz>")
		}
		f, err := spectrum.ParseFrequency(args[1])
		if err != nil {
			return err
		}
		return s.SetFrequency(ctx, f)

	case "scan":
		running, err := s.ToggleScan()
		if err != nil {
			return err
		}
		if running {
			fmt.Fprintf(c.out, "station '%s' is scanning\n", s.Name())
		} else {
			fmt.Fprintf(c.out, "station '%s' stopped scanning\n", s.Name())
		}
		return nil

	case "mode":
		if len(args) != 2 {
			return errors.New("usage: mode <station> <withinPreset|byStep>")
		}
		mode, err := spectrum.ParseScanMode(args[1])
		if err != nil {
			return err
		}
		return s.SetScanMode(mode)

	case "delay":
		if len(args) != 2 {
			return errors.New("usage: delay <station> <duration>")
		}
		delay, err := parseDelay(args[1])
		if err != nil {
			return err
		}
		return s.SetScanDelay(delay)

	case "step":
		if len(args) != 2 {
			return errors.New("usage: step <station> <MHz>")
		}
		step, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid step '%s': %w", args[1], err)
		}
		return s.SetScanStep(step)
	}

	return nil
}

// station resolves the station named by the first argument
func (c *Console) station(args []string) (*station.Station, error) {
	if len(args) == 0 {
		return nil, errors.New("station name is required")
	}

	s, ok := c.group.Station(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown station '%s'", args[0])
	}
	return s, nil
}

func (c *Console) list() error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATION\tROLE\tLOCATION\tPRESET\tFREQUENCY\tSCAN\tMODE\tSTATUS")

	for _, s := range c.group.Stations() {
		settings := s.ScanSettings()

		scan := "stopped"
		if s.Scanning() {
			scan = fmt.Sprintf("%s/%s", settings.Mode, settings.Delay)
		}

		mode := "bus"
		if s.Local() {
			mode = "local"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name(), s.Role(), s.Location(), s.Preset().Name, formatFrequency(s.Frequency()), scan, mode, s.Status())
	}

	return w.Flush()
}

func (c *Console) history(s *station.Station) error {
	history := s.History()
	if len(history) == 0 {
		fmt.Fprintf(c.out, "station '%s' has no history\n", s.Name())
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FREQUENCY\tRSSI")
	for _, entry := range history {
		fmt.Fprintf(w, "%s\t%s\n", formatFrequency(entry.Frequency), entry.RSSI)
	}
	return w.Flush()
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

// parseDelay accepts a duration ("1500ms", "3s") or whole seconds ("3")
func parseDelay(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	delay, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay '%s': %w", s, err)
	}
	return delay, nil
}

func formatFrequency(f spectrum.Frequency) string {
	v, err := f.Value()
	if err != nil {
		return f.String()
	}
	return humanize.Comma(v) + " MHz"
}
