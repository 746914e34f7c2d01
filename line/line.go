// Package line implements a transmission mode for controllers that
// exchange terminated ASCII lines over a byte stream, like the
// NI GPIB-232CT on a serial port.
package line

import (
	"bytes"
	"io"
	"time"

	"github.com/knieriem/gpib"
)

const (
	DefaultWriteTerm = "\r"
	DefaultReadTerm  = "\r\n"
)

type Conn struct {
	conn io.ReadWriter
	buf  *bytes.Buffer

	readMgr *ReadMgr
	ExitC   chan int

	WriteTerm string
	ReadTerm  string

	OnReceiveError func(*Conn, error)
}

func NewNetConn(conn io.ReadWriter) (m *Conn) {
	m = new(Conn)
	m.conn = conn
	m.buf = new(bytes.Buffer)

	var buf = make([]byte, 256)
	rf := func() ([]byte, error) {
		n, err := conn.Read(buf)
		if err == nil {
			return buf[:n], nil
		}
		return nil, err
	}
	m.ExitC = make(chan int, 1)
	m.readMgr = NewReadMgr(rf, m.ExitC)

	m.WriteTerm = DefaultWriteTerm
	m.ReadTerm = DefaultReadTerm
	return
}

func (m *Conn) Name() string {
	return "line"
}

func (m *Conn) Device() interface{} {
	return m.conn
}

func (m *Conn) MsgWriter() io.Writer {
	m.buf.Reset()
	return m.buf
}

// Send terminates the current message and writes it to the
// connection. Input received before Send is discarded.
func (m *Conn) Send() (buf []byte, err error) {
	b := m.buf
	b.WriteString(m.WriteTerm)

	err = m.readMgr.Start()
	if err != nil {
		return
	}
	buf = append([]byte(nil), b.Bytes()...)
	_, err = b.WriteTo(m.conn)
	if err != nil {
		m.readMgr.Cancel()
	}
	return
}

// Receive waits for a reply as described by rs. Line replies are
// returned without their final terminator; lines within a
// multi-line reply stay separated by ReadTerm.
func (m *Conn) Receive(tMax time.Duration, rs *gpib.ReplySpec) (buf []byte, err error) {
	if f := m.OnReceiveError; f != nil {
		defer func() {
			if err != nil {
				f(m, err)
			}
		}()
	}
	if rs == nil {
		rs = gpib.OneLine
	}
	term := []byte(m.ReadTerm)
	complete := func(b []byte) bool {
		if rs.Len > 0 {
			return len(b) >= rs.Len
		}
		return bytes.Count(b, term) >= rs.NumLines()
	}
	data, err := m.readMgr.Read(tMax, complete)
	if rs.Len > 0 {
		if len(data) > rs.Len {
			data = data[:rs.Len]
		}
	} else if err == nil {
		data = cutLines(data, term, rs.NumLines())
	}
	buf = append([]byte(nil), data...)
	return
}

func cutLines(b, term []byte, n int) []byte {
	end := 0
	for i := 0; i < n; i++ {
		j := bytes.Index(b[end:], term)
		if j == -1 {
			return b
		}
		if i == n-1 {
			return b[:end+j]
		}
		end += j + len(term)
	}
	return b[:end]
}

func (m *Conn) ReadMgr() *ReadMgr {
	return m.readMgr
}
