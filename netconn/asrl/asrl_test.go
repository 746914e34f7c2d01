package asrl

import (
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/knieriem/gpib"
	"github.com/knieriem/gpib/netconn"
)

func TestParseCommand(t *testing.T) {
	if _, match := parseCommand("/dev/ttyUSB0"); match {
		t.Error("port name taken as command")
	}
	if _, match := parseCommand("!"); match {
		t.Error("empty command accepted")
	}
	c, match := parseCommand("!socat - /dev/ttyS1")
	if !match {
		t.Fatal("command not recognized")
	}
	if diff := cmp.Diff([]string{"socat", "-", "/dev/ttyS1"}, c.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestDialCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	list := netconn.ConfList{{Proto: "asrl", Device: "!cat"}}
	conn, err := list.Dial("")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if conn.Addr != "asrl:!cat" {
		t.Errorf("Addr = %q", conn.Addr)
	}

	io.WriteString(conn.MsgWriter(), "1\r\n")
	if _, err := conn.Send(); err != nil {
		t.Fatal(err)
	}
	buf, err := conn.Receive(5*time.Second, gpib.OneLine)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != "1" {
		t.Errorf("echo = %q, want %q", buf, "1")
	}
}
