package asrl

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/knieriem/text/rc"
)

// cmd is a program whose stdin and stdout stand in
// for a serial port, such as a simulator or a socat bridge.
type cmd struct {
	*exec.Cmd
}

func parseCommand(spec string) (c *cmd, match bool) {
	if !strings.HasPrefix(spec, "!") || len(spec) < 2 {
		return
	}
	args := rc.Tokenize(spec[1:])
	if len(args) == 0 {
		return
	}
	match = true
	c = &cmd{Cmd: exec.Command(args[0], args[1:]...)}
	return
}

type pipeConn struct {
	io.Reader
	io.WriteCloser
	c *exec.Cmd
}

func (p *pipeConn) Close() error {
	err := p.WriteCloser.Close()
	if p.c.Process != nil {
		p.c.Process.Kill()
		p.c.Wait()
	}
	return err
}

func (c *cmd) Dial() (f io.ReadWriteCloser, err error) {
	w, err := c.StdinPipe()
	if err != nil {
		return
	}
	r, err := c.StdoutPipe()
	if err != nil {
		return
	}
	c.Stderr = os.Stderr
	err = c.Start()
	if err != nil {
		return
	}
	f = &pipeConn{Reader: r, WriteCloser: w, c: c.Cmd}
	return
}
