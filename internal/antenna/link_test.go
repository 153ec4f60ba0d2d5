package antenna

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// fakePort is an in-memory serial port. Reads return the queued chunks one at a time.
type fakePort struct {
	reads  chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.reads:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, fs.ErrClosed
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, fs.ErrClosed
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, w := range p.writes {
		out = append(out, string(w))
	}
	return out
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func openFakeLink(t *testing.T) (*Link, *fakePort) {
	t.Helper()

	port := newFakePort()
	link := NewLink(NewConfig("/dev/fake"), WithOpener(func(Config) (io.ReadWriteCloser, error) {
		return port, nil
	}))

	if err := link.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = link.Close() })

	return link, port
}

func TestEncodeTune(t *testing.T) {
	testCases := []struct {
		frequency spectrum.Frequency
		want      string
	}{
		{"400", "#,S,E,T, ,4,0,0\n"},
		{"5865", "#,S,E,T, ,5,8,6,5\n"},
		{"7", "#,S,E,T, ,7\n"},
	}

	for _, tc := range testCases {
		if got := string(EncodeTune(tc.frequency)); got != tc.want {
			t.Errorf("EncodeTune(%s): expected %q, got %q", tc.frequency, tc.want, got)
		}
	}
}

func TestParseRSSI(t *testing.T) {
	testCases := []struct {
		frame   string
		want    string
		wantErr bool
	}{
		{"#RSSI 123\n", "123", false},
		{"#RSSI 045\n", "045", false},
		{"RSSI: level 7\n", "7", false},
		{"#RSSI 12 34\n", "34", false},
		{"#RSSI\n", "", true},
		{"garbage\n", "", true},
		{"123\n", "", true},
	}

	for _, tc := range testCases {
		got, err := ParseRSSI(tc.frame)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRSSI(%q): expected error, got %q", tc.frame, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRSSI(%q): unexpected error: %v", tc.frame, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRSSI(%q): expected %q, got %q", tc.frame, tc.want, got)
		}
	}
}

func TestLink_OpenError(t *testing.T) {
	cause := errors.New("no such device")
	link := NewLink(NewConfig("/dev/missing"), WithOpener(func(Config) (io.ReadWriteCloser, error) {
		return nil, cause
	}))

	err := link.Open()

	var openErr *LinkOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *LinkOpenError, got %T: %v", err, err)
	}
	if openErr.Port != "/dev/missing" {
		t.Errorf("expected port /dev/missing, got %s", openErr.Port)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected error to wrap the opener error, got %v", err)
	}
	if link.IsOpen() {
		t.Error("link must not be open after a failed Open")
	}
	if err := link.Tune(context.Background(), "400"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestLink_OpenInvalidConfig(t *testing.T) {
	link := NewLink(Config{})

	var openErr *LinkOpenError
	if err := link.Open(); !errors.As(err, &openErr) {
		t.Fatalf("expected *LinkOpenError, got %v", err)
	}
}

func TestLink_TuneWritesOnce(t *testing.T) {
	link, port := openFakeLink(t)
	ctx := context.Background()

	for _, f := range []spectrum.Frequency{"400", "400", "410", "410", "400"} {
		if err := link.Tune(ctx, f); err != nil {
			t.Fatalf("Tune(%s): %v", f, err)
		}
	}

	want := []string{"#,S,E,T, ,4,0,0\n", "#,S,E,T, ,4,1,0\n", "#,S,E,T, ,4,0,0\n"}
	got := port.written()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLink_TuneAfterClose(t *testing.T) {
	link, _ := openFakeLink(t)

	if err := link.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := link.Tune(context.Background(), "400"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestLink_ReopenResetsFrequency(t *testing.T) {
	var ports []*fakePort
	link := NewLink(NewConfig("/dev/fake"), WithOpener(func(Config) (io.ReadWriteCloser, error) {
		p := newFakePort()
		ports = append(ports, p)
		return p, nil
	}))
	defer link.Close()

	ctx := context.Background()

	if err := link.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := link.Tune(ctx, "400"); err != nil {
		t.Fatalf("Tune: %v", err)
	}

	if err := link.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !ports[0].isClosed() {
		t.Error("previous port must be closed on reopen")
	}

	// same frequency is written again on the fresh connection
	if err := link.Tune(ctx, "400"); err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if got := ports[1].written(); len(got) != 1 {
		t.Errorf("expected one write on the new port, got %q", got)
	}
}

func collect(link *Link) (<-chan spectrum.RSSIReading, <-chan *FrameError) {
	readings := make(chan spectrum.RSSIReading, 8)
	failures := make(chan *FrameError, 8)

	link.OnRSSI(func(r spectrum.RSSIReading) { readings <- r })
	link.OnReadError(func(err *FrameError) { failures <- err })

	return readings, failures
}

func expectReading(t *testing.T, readings <-chan spectrum.RSSIReading, frequency spectrum.Frequency, rssi string) {
	t.Helper()

	select {
	case r := <-readings:
		if r.RSSI != rssi {
			t.Errorf("expected RSSI %q, got %q", rssi, r.RSSI)
		}
		if r.Frequency != frequency {
			t.Errorf("expected frequency %q, got %q", frequency, r.Frequency)
		}
		if r.Timestamp.IsZero() {
			t.Error("expected reading timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for RSSI %q", rssi)
	}
}

func TestLink_SplitFrame(t *testing.T) {
	link, port := openFakeLink(t)
	readings, failures := collect(link)

	if err := link.Tune(context.Background(), "400"); err != nil {
		t.Fatalf("Tune: %v", err)
	}

	port.reads <- []byte("#RSSI 4")
	port.reads <- []byte("5\n")

	expectReading(t, readings, "400", "45")

	select {
	case err := <-failures:
		t.Errorf("unexpected read error: %v", err)
	case r := <-readings:
		t.Errorf("unexpected extra reading: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLink_MultipleFramesInChunk(t *testing.T) {
	link, port := openFakeLink(t)
	readings, _ := collect(link)

	port.reads <- []byte("#RSSI 10\n#RSSI 20\n#RSSI 3")
	port.reads <- []byte("0\n")

	// no tune has happened yet, readings correlate to the unset frequency
	expectReading(t, readings, "", "10")
	expectReading(t, readings, "", "20")
	expectReading(t, readings, "", "30")
}

func TestLink_DecodeErrorRecovers(t *testing.T) {
	link, port := openFakeLink(t)
	readings, failures := collect(link)

	if err := link.Tune(context.Background(), "410"); err != nil {
		t.Fatalf("Tune: %v", err)
	}

	port.reads <- []byte("#RSSI 9")
	port.reads <- []byte{0xff, 0xfe, '\n'}
	port.reads <- []byte("#RSSI 77\n")

	select {
	case err := <-failures:
		if err.Kind != FrameDecodeFailure {
			t.Errorf("expected decode failure, got %s", err.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read error")
	}

	// the partial "#RSSI 9" was discarded with the bad chunk
	expectReading(t, readings, "410", "77")

	select {
	case err := <-failures:
		t.Errorf("expected exactly one read error, got another: %v", err)
	default:
	}
}

func TestLink_ParseErrorRecovers(t *testing.T) {
	link, port := openFakeLink(t)
	readings, failures := collect(link)

	port.reads <- []byte("garbage\n#RSSI 5\n")

	select {
	case err := <-failures:
		if err.Kind != FrameParseFailure {
			t.Errorf("expected parse failure, got %s", err.Kind)
		}
		if string(err.Data) != "garbage\n" {
			t.Errorf("expected offending frame in error, got %q", err.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read error")
	}

	expectReading(t, readings, "", "5")
}

func TestLink_FrameTooLong(t *testing.T) {
	link, port := openFakeLink(t)
	readings, failures := collect(link)

	chunk := make([]byte, readBufferSize)
	for i := range chunk {
		chunk[i] = 'x'
	}
	for i := 0; i < MaxFrameSize/readBufferSize+1; i++ {
		port.reads <- chunk
	}

	select {
	case err := <-failures:
		if !errors.Is(err, ErrFrameTooLong) {
			t.Errorf("expected ErrFrameTooLong, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read error")
	}

	port.reads <- []byte("#RSSI 1\n")
	expectReading(t, readings, "", "1")
}
