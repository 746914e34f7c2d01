package gpib232

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/knieriem/gpib"
)

const statOK = "256\r\n0\r\n0\r\n0"

// fakeConn plays the part of a GPIB-232CT: each command sent
// is recorded, and the reply registered for it is returned
// by the next Receive.
type fakeConn struct {
	buf     bytes.Buffer
	sent    []string
	replies map[string]string
	partial map[string]bool
	pending *string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		replies: map[string]string{"stat n": statOK},
		partial: map[string]bool{},
	}
}

func (f *fakeConn) Name() string         { return "fake" }
func (f *fakeConn) Device() interface{}  { return nil }
func (f *fakeConn) MsgWriter() io.Writer { f.buf.Reset(); return &f.buf }

func (f *fakeConn) Send() ([]byte, error) {
	cmd := f.buf.String()
	f.sent = append(f.sent, cmd)
	f.pending = nil
	if r, ok := f.replies[cmd]; ok {
		f.pending = &r
	}
	return []byte(cmd + "\r"), nil
}

func (f *fakeConn) Receive(timeout time.Duration, rs *gpib.ReplySpec) ([]byte, error) {
	if f.pending == nil {
		return nil, gpib.ErrTimeout
	}
	r := *f.pending
	f.pending = nil
	if rs.Len > 0 && len(r) > rs.Len {
		r = r[:rs.Len]
	}
	if f.partial[f.sent[len(f.sent)-1]] {
		return []byte(r), gpib.ErrTimeout
	}
	return []byte(r), nil
}

func newTestController(t *testing.T, f *fakeConn, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithReadDelay(0)}, opts...)
	c, err := New(f, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.sent = nil
	return c
}

func TestNewInitializes(t *testing.T) {
	for _, eoi := range []bool{true, false} {
		f := newFakeConn()
		_, err := New(f, WithEOI(eoi))
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"EOS D", "EOT 0"}
		if eoi {
			want[1] = "EOT 1"
		}
		if diff := cmp.Diff(want, f.sent); diff != "" {
			t.Errorf("eoi=%v: commands mismatch (-want +got):\n%s", eoi, diff)
		}
	}
}

func TestWrite(t *testing.T) {
	f := newFakeConn()
	c := newTestController(t, f)
	d, err := c.Device(23)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Write("QFR")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"wrt 23\nQFR", "stat n", "stat"}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if n := c.RequestStats.Num.All; n != 1 {
		t.Errorf("RequestStats.Num.All = %d, want 1", n)
	}
}

func TestStatusErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFakeConn()
	f.replies["stat n"] = "33024\r\n2\r\n1\r\n0"
	c := newTestController(t, f, WithLogger(zap.New(core)))
	d, _ := c.Device(7)

	err := d.Write("*RST")
	if err != nil {
		t.Fatalf("a reported GPIB error must not be returned, got %v", err)
	}
	entries := logs.FilterMessage("error detected").All()
	if len(entries) != 1 {
		t.Fatalf("got %d warnings, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["gpibErr"] != "ENOL" || fields["serialErr"] != "EPAR" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if n := c.RequestStats.Num.Status; n != 1 {
		t.Errorf("RequestStats.Num.Status = %d, want 1", n)
	}
}

func TestRead(t *testing.T) {
	f := newFakeConn()
	f.replies["rd 23"] = "+1.00000E+0"
	c := newTestController(t, f)
	d, _ := c.Device(23)

	s, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if s != "+1.00000E+0" {
		t.Errorf("Read = %q", s)
	}
	want := []string{"rd 23", "stat n", "stat"}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTimeout(t *testing.T) {
	f := newFakeConn()
	c := newTestController(t, f)
	d, _ := c.Device(5)

	_, err := d.Read()
	if !gpib.IsTimeout(err) {
		t.Fatalf("got %v, want timeout", err)
	}
	if n := c.RequestStats.Num.Timeout; n != 1 {
		t.Errorf("RequestStats.Num.Timeout = %d, want 1", n)
	}
	if diff := cmp.Diff([]string{"rd 5"}, f.sent); diff != "" {
		t.Errorf("no status check expected after a failed read (-want +got):\n%s", diff)
	}
}

func TestReadBytes(t *testing.T) {
	tests := []struct {
		n       int
		cmd     string
		reply   string
		partial bool
		want    string
	}{
		{n: -1, cmd: "rd #255 23", reply: "FR1000.0HZ", partial: true, want: "FR1000.0HZ"},
		{n: 4, cmd: "rd #4 23", reply: "ABCDEF", want: "ABCD"},
		{n: 1000, cmd: "rd #1000 23", reply: "X", partial: true, want: "X"},
		{n: 300, cmd: "rd #300 23", reply: strings.Repeat("Z", 300), want: strings.Repeat("Z", 300)},
	}
	for _, tt := range tests {
		f := newFakeConn()
		f.replies[tt.cmd] = tt.reply
		f.partial[tt.cmd] = tt.partial
		c := newTestController(t, f)
		d, _ := c.Device(23)

		buf, err := d.ReadBytes(tt.n)
		if err != nil {
			t.Errorf("ReadBytes(%d): %v", tt.n, err)
			continue
		}
		if string(buf) != tt.want {
			t.Errorf("ReadBytes(%d) = %q, want %q", tt.n, buf, tt.want)
		}
		if f.sent[0] != tt.cmd {
			t.Errorf("ReadBytes(%d) sent %q, want %q", tt.n, f.sent[0], tt.cmd)
		}
	}
}

func TestAddressedCommands(t *testing.T) {
	f := newFakeConn()
	f.replies["rsp 19"] = "64"
	c := newTestController(t, f)
	d, _ := c.Device(19)

	if err := d.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	stb, err := d.SerialPoll()
	if err != nil {
		t.Fatal(err)
	}
	if stb != 64 {
		t.Errorf("SerialPoll = %d, want 64", stb)
	}
	want := []string{"clr 19", "trg 19", "rsp 19", "stat n", "stat"}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestDevicesShareController(t *testing.T) {
	f := newFakeConn()
	c := newTestController(t, f)
	meter, _ := c.Device(23)
	source, _ := c.Device(19)

	source.Write("VSET 1.5")
	meter.Write("F1")
	var wrt []string
	for _, s := range f.sent {
		if strings.HasPrefix(s, "wrt") {
			wrt = append(wrt, s)
		}
	}
	want := []string{"wrt 19\nVSET 1.5", "wrt 23\nF1"}
	if diff := cmp.Diff(want, wrt); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if meter.Controller() != source.Controller() {
		t.Error("devices do not share the controller")
	}
}

func TestInvalidAddr(t *testing.T) {
	f := newFakeConn()
	c := newTestController(t, f)
	for _, a := range []gpib.Addr{-1, 31, 100} {
		_, err := c.Device(a)
		var ae *gpib.InvalidAddrError
		if !errors.As(err, &ae) {
			t.Errorf("Device(%d): got %v, want InvalidAddrError", a, err)
		}
		if err := c.Write(a, []byte("x")); !errors.As(err, &ae) {
			t.Errorf("Write(%d): got %v, want InvalidAddrError", a, err)
		}
	}
	if len(f.sent) != 0 {
		t.Errorf("commands sent for invalid addresses: %q", f.sent)
	}
}

func TestControllerCommands(t *testing.T) {
	f := newFakeConn()
	f.replies["EOT"] = "1"
	f.replies["id"] = "  GPIB-232CT-A Revision D.1 (c) 1994 National Instruments Corp.\r\n"
	f.partial["id"] = true
	c := newTestController(t, f)

	on, err := c.EOI()
	if err != nil || !on {
		t.Errorf("EOI = %v, %v; want true", on, err)
	}
	v, err := c.Version()
	if err != nil {
		t.Fatal(err)
	}
	if v != "GPIB-232CT-A Revision D.1 (c) 1994 National Instruments Corp." {
		t.Errorf("Version = %q", v)
	}
	if err := c.SendCommand([]byte("?_")); err != nil {
		t.Fatal(err)
	}
	if err := c.PassControl(5, 96); err != nil {
		t.Fatal(err)
	}
	if err := c.BecomeSystemController(); err != nil {
		t.Fatal(err)
	}
	if err := c.SendIFC(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"EOT", "id",
		"cmd #2\n?_", "stat n", "stat",
		"pct 5+96", "rsc 1", "sic 0.0002",
	}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestPassControl(t *testing.T) {
	f := newFakeConn()
	c := newTestController(t, f)

	if err := c.PassControl(5, NoSecondary); err != nil {
		t.Fatal(err)
	}
	if err := c.PassControl(5, 126); err != nil {
		t.Fatal(err)
	}
	for _, sad := range []int{0, 31, 95, 127, 200} {
		if err := c.PassControl(5, sad); !errors.Is(err, ErrSecondaryAddr) {
			t.Errorf("PassControl(5, %d): got %v, want %v", sad, err, ErrSecondaryAddr)
		}
	}
	var ae *gpib.InvalidAddrError
	if err := c.PassControl(31, 96); !errors.As(err, &ae) {
		t.Errorf("PassControl(31, 96): got %v, want InvalidAddrError", err)
	}
	want := []string{"pct 5", "pct 5+126"}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestStatus(t *testing.T) {
	f := newFakeConn()
	f.replies["stat n"] = "41216\r\n0\r\n0\r\n12"
	c := newTestController(t, f)

	r, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	want := StatusReport{Status: ERR | END | CMPL, Count: 12}
	if r != want {
		t.Errorf("Status = %v, want %v", r, want)
	}
}

func TestStatusCheckFailure(t *testing.T) {
	f := newFakeConn()
	f.replies["stat n"] = "256\r\n0"
	c := newTestController(t, f)
	d, _ := c.Device(1)

	err := d.Write("X")
	if !gpib.MsgInvalid(err) {
		t.Errorf("got %v, want an invalid reply error", err)
	}
	if n := c.RequestStats.Num.Invalid; n != 1 {
		t.Errorf("RequestStats.Num.Invalid = %d, want 1", n)
	}
}
