package line

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/knieriem/gpib"
)

// instrument answers each command received on conn
// using the replies map.
func instrument(conn net.Conn, replies map[string]string) {
	r := bufio.NewReader(conn)
	for {
		cmd, err := r.ReadString('\r')
		if err != nil {
			return
		}
		if reply, ok := replies[cmd[:len(cmd)-1]]; ok {
			conn.Write([]byte(reply))
		}
	}
}

func send(t *testing.T, c *Conn, cmd string) {
	t.Helper()
	io.WriteString(c.MsgWriter(), cmd)
	sent, err := c.Send()
	if err != nil {
		t.Fatalf("Send(%q): %v", cmd, err)
	}
	if string(sent) != cmd+"\r" {
		t.Fatalf("Send returned %q, want %q", sent, cmd+"\r")
	}
}

func TestReceiveLines(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()
	go instrument(dev, map[string]string{
		"stat n": "256\r\n0\r\n0\r\n0\r\n",
		"EOT":    "1\r\n",
	})
	c := NewNetConn(host)

	send(t, c, "stat n")
	buf, err := c.Receive(time.Second, &gpib.ReplySpec{Lines: 4})
	if err != nil {
		t.Fatal(err)
	}
	if s := string(buf); s != "256\r\n0\r\n0\r\n0" {
		t.Errorf("Receive = %q", s)
	}

	send(t, c, "EOT")
	buf, err = c.Receive(time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := string(buf); s != "1" {
		t.Errorf("Receive = %q, want %q", s, "1")
	}
}

func TestReceiveBytes(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()
	go instrument(dev, map[string]string{
		"rd #4 23": "ABCDEFG",
	})
	c := NewNetConn(host)

	send(t, c, "rd #4 23")
	buf, err := c.Receive(time.Second, gpib.RawBytes(4))
	if err != nil {
		t.Fatal(err)
	}
	if s := string(buf); s != "ABCD" {
		t.Errorf("Receive = %q, want %q", s, "ABCD")
	}
}

func TestReceiveTimeout(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()
	go instrument(dev, map[string]string{
		"rd 23": "+1.0E",
	})
	c := NewNetConn(host)
	var errs []error
	c.OnReceiveError = func(_ *Conn, err error) {
		errs = append(errs, err)
	}

	send(t, c, "rd 23")
	buf, err := c.Receive(50*time.Millisecond, gpib.OneLine)
	if !gpib.IsTimeout(err) {
		t.Fatalf("got %v, want timeout", err)
	}
	if s := string(buf); s != "+1.0E" {
		t.Errorf("partial data = %q", s)
	}
	if len(errs) != 1 {
		t.Errorf("OnReceiveError called %d times, want 1", len(errs))
	}

	send(t, c, "nothing")
	buf, err = c.Receive(20*time.Millisecond, gpib.OneLine)
	if !gpib.IsTimeout(err) || len(buf) != 0 {
		t.Errorf("got %q, %v; want no data and a timeout", buf, err)
	}
}

type chanWriter chan string

func (w chanWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func TestUnsolicitedDataIsDiscarded(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()
	c := NewNetConn(host)
	fw := make(chanWriter, 4)
	c.ReadMgr().Forward = fw

	go dev.Write([]byte("stale\r\n"))
	select {
	case s := <-fw:
		if s != "stale\r\n" {
			t.Errorf("forwarded %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("unsolicited data not forwarded")
	}

	go instrument(dev, map[string]string{"EOT": "0\r\n"})
	send(t, c, "EOT")
	buf, err := c.Receive(time.Second, gpib.OneLine)
	if err != nil {
		t.Fatal(err)
	}
	if s := string(buf); s != "0" {
		t.Errorf("Receive = %q, want %q", s, "0")
	}
}

func TestClosedConnection(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	c := NewNetConn(host)
	dev.Close()

	select {
	case code := <-c.ExitC:
		if code != 0 {
			t.Errorf("exit code %d, want 0", code)
		}
	case <-time.After(time.Second):
		t.Fatal("reader did not exit")
	}
	io.WriteString(c.MsgWriter(), "stat n")
	_, err := c.Send()
	if err != gpib.ErrClosed {
		t.Errorf("Send after close: got %v, want %v", err, gpib.ErrClosed)
	}
}

func TestCutLines(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"1\r\n", 1, "1"},
		{"1\r\n2\r\n", 1, "1"},
		{"a\r\nb\r\nc\r\nd\r\nextra", 4, "a\r\nb\r\nc\r\nd"},
		{"no terminator", 1, "no terminator"},
	}
	for _, tt := range tests {
		got := string(cutLines([]byte(tt.in), []byte("\r\n"), tt.n))
		if got != tt.want {
			t.Errorf("cutLines(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
