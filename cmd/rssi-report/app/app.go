package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/antenna-station/internal/storage"
)

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.ListSessions {
		return listSessions(ctx, store, out)
	}

	data, err := readReport(ctx, store, config, logger)
	if err != nil {
		return err
	}
	if len(data.Bars) == 0 {
		return fmt.Errorf("session %d has no readings matching the filters", config.SessionID)
	}

	if err = writeSummary(out, data); err != nil {
		return err
	}

	renderer := NewReportRenderer(RenderConfig{Location: config.TimeZone})
	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}

	logger.Info("writing report",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	f, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(f, img)

	case ImageJPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{
			Quality: 98,
		})
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	return f.Close()
}

func readReport(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*ReportData, error) {
	var opts []storage.ReaderOption
	var filters []any

	if config.MinFrequency != nil {
		opts = append(opts, storage.WithMinFrequency(*config.MinFrequency))
		filters = append(filters, slog.String("minFreq", config.MinFrequency.String()+"MHz"))
	}
	if config.MaxFrequency != nil {
		opts = append(opts, storage.WithMaxFrequency(*config.MaxFrequency))
		filters = append(filters, slog.String("maxFreq", config.MaxFrequency.String()+"MHz"))
	}

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	logger.Info("reader configuration", filters...)

	reader, err := store.ReadReadings(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data := NewReportData(reader.Session())
	for reader.Next() {
		data.Update(reader.Current())
	}
	if err = reader.Error(); err != nil {
		return nil, err
	}
	data.Finish()

	logger.Info("finished reading",
		slog.Group("stats",
			slog.Int("readings", data.Readings),
			slog.Int("frequencies", len(data.Bars)),
			slog.String("minLevel", humanize.Commaf(data.LevelMin)),
			slog.String("maxLevel", humanize.Commaf(data.LevelMax)),
		))

	return data, nil
}

// writeSummary prints the strongest frequency and the bar values
func writeSummary(out io.Writer, data *ReportData) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if s := data.Session; s != nil {
		fmt.Fprintf(w, "Session %d: %s (%s), preset %s, started %s\n",
			s.ID, s.Station, s.Role, s.Preset, humanize.Time(s.StartTime))
	}
	fmt.Fprintf(w, "%s readings on %d frequencies over %s\n",
		humanize.Comma(int64(data.Readings)), len(data.Bars), humanDuration(data.TimestampEnd.Sub(data.TimestampStart)))

	if best, ok := data.Strongest(); ok {
		fmt.Fprintf(w, "Strongest: %s, RSSI %s, %s\n", humanHz(best.Frequency), best.RSSI, humanize.Time(best.Timestamp))
	}

	fmt.Fprintln(w, "\nFREQUENCY\tRSSI\tREADINGS\tLAST SEEN")
	for _, bar := range data.Bars {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			humanHz(bar.Frequency), bar.RSSI, humanize.Comma(int64(bar.Count)), humanize.Time(bar.Timestamp))
	}

	return w.Flush()
}

func listSessions(ctx context.Context, store *storage.SqliteStore, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATION\tROLE\tPRESET\tSTARTED\tFREQUENCIES")
	for _, s := range sessions {
		latest, err := store.LatestReadings(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("reading session %d: %w", s.ID, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Station, s.Role, s.Preset, humanize.Time(s.StartTime), len(latest))
	}
	return w.Flush()
}

// humanHz formats a frequency in MHz with an SI prefix, e.g. "5.8 GHz"
func humanHz(mhz int64) string {
	v, prefix := humanize.ComputeSI(float64(mhz) * 1e6)
	return fmt.Sprintf("%s %sHz", humanize.FtoaWithDigits(v, 4), prefix)
}

func humanDuration(d time.Duration) string {
	if d < time.Second {
		return "less than a second"
	}
	return d.Round(time.Second).String()
}
