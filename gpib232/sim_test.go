package gpib232

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/knieriem/gpib/line"
)

// simController emulates a GPIB-232CT on the far end of conn.
// Like the real device, it answers each command after a short
// delay, so that a reply may arrive after the host has already
// sent its next command.
type simController struct {
	conn    net.Conn
	delay   time.Duration
	replies map[string]string
	failOn  string
}

func (s *simController) run() {
	r := bufio.NewReader(s.conn)
	failed := false
	for {
		cmd, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd = cmd[:len(cmd)-1]
		var reply string
		switch {
		case strings.HasPrefix(cmd, "wrt "):
			failed = s.failOn != "" && strings.HasSuffix(cmd, "\n"+s.failOn)
			continue
		case cmd == "stat n":
			reply = "256\r\n0\r\n0\r\n3\r\n"
			if failed {
				reply = "33024\r\n2\r\n0\r\n0\r\n"
			}
		case cmd == "stat":
			reply = "CMPL\r\n0\r\n0\r\n3\r\n"
			if failed {
				reply = "ERR CMPL\r\nENOL\r\n0\r\n0\r\n"
			}
			failed = false
		default:
			rep, ok := s.replies[cmd]
			if !ok {
				continue
			}
			reply = rep
		}
		time.Sleep(s.delay)
		s.conn.Write([]byte(reply))
	}
}

func newSimController(t *testing.T, sim *simController, opts ...Option) *Controller {
	t.Helper()
	host, dev := net.Pipe()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	sim.conn = dev
	go sim.run()

	opts = append([]Option{WithTimeout(time.Second)}, opts...)
	c, err := New(line.NewNetConn(host), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestDelayedRepliesStayInOrder(t *testing.T) {
	sim := &simController{
		delay: 2 * time.Millisecond,
		replies: map[string]string{
			"rd 23":    "FR1000HZ\r\n",
			"rd #4 23": "AB12",
			"rsp 23":   "64\r\n",
			"EOT":      "1\r\n",
		},
	}
	c := newSimController(t, sim)
	d, err := c.Device(23)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := d.Write("QFR"); err != nil {
			t.Fatalf("Write: %v", err)
		}
		s, err := d.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if s != "FR1000HZ" {
			t.Fatalf("round %d: Read = %q, want %q", i, s, "FR1000HZ")
		}
	}

	buf, err := d.ReadBytes(4)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != "AB12" {
		t.Errorf("ReadBytes(4) = %q, want %q", buf, "AB12")
	}
	stb, err := d.SerialPoll()
	if err != nil {
		t.Fatal(err)
	}
	if stb != 64 {
		t.Errorf("SerialPoll = %d, want 64", stb)
	}

	r, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if want := (StatusReport{Status: CMPL, Count: 3}); r != want {
		t.Errorf("Status = %+v, want %+v", r, want)
	}
	on, err := c.EOI()
	if err != nil || !on {
		t.Errorf("EOI = %v, %v; want true", on, err)
	}
	if n := c.RequestStats.Num.All; n != 8 {
		t.Errorf("RequestStats.Num.All = %d, want 8", n)
	}
}

func TestDelayedStatusError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sim := &simController{
		delay:   2 * time.Millisecond,
		replies: map[string]string{"rd 5": "+1.5E+0\r\n"},
		failOn:  "VSET 99",
	}
	c := newSimController(t, sim, WithLogger(zap.New(core)))
	d, _ := c.Device(5)

	if err := d.Write("VSET 99"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := logs.FilterMessage("error detected").Len(); n != 1 {
		t.Errorf("got %d warnings, want 1", n)
	}
	if n := c.RequestStats.Num.Status; n != 1 {
		t.Errorf("RequestStats.Num.Status = %d, want 1", n)
	}

	if err := d.Write("VSET 1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if s != "+1.5E+0" {
		t.Errorf("Read = %q, want %q", s, "+1.5E+0")
	}
	if n := logs.FilterMessage("error detected").Len(); n != 1 {
		t.Errorf("got %d warnings after a clean write, want 1", n)
	}
}
