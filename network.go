package gpib

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// MaxAddr is the highest primary address on the bus.
const MaxAddr = 30

// Addr is a GPIB primary address.
type Addr int

// NoAddr denotes the controller itself.
const NoAddr Addr = -1

func (a Addr) Valid() bool {
	return a >= 0 && a <= MaxAddr
}

func (a Addr) String() string {
	if a == NoAddr {
		return "controller"
	}
	return strconv.Itoa(int(a))
}

// NetConn is a transmission mode on top of a byte stream
// connection to a bus controller.
type NetConn interface {
	Name() string
	MsgWriter() io.Writer
	Send() ([]byte, error)
	Receive(timeout time.Duration, rs *ReplySpec) ([]byte, error)
	Device() interface{}
}

// ReplySpec tells Receive when a reply is complete.
// If Len is greater than zero, the reply consists of
// Len raw bytes, otherwise of Lines terminated lines.
type ReplySpec struct {
	Lines int
	Len   int
}

// NumLines returns the number of lines expected,
// which is at least one.
func (rs *ReplySpec) NumLines() int {
	if rs.Lines < 1 {
		return 1
	}
	return rs.Lines
}

// OneLine is the ReplySpec of most controller replies.
var OneLine = &ReplySpec{Lines: 1}

func RawBytes(n int) *ReplySpec {
	return &ReplySpec{Len: n}
}

type Error string

func (e Error) Error() string {
	return "gpib: " + string(e)
}

var ErrTimeout = Error("timeout")
var ErrClosed = Error("connection closed")
var ErrIncomplete = Error("incomplete reply")

// IsTimeout reports whether err, or an error it wraps,
// is ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

type InvalidAddrError struct {
	Addr Addr
}

func (e *InvalidAddrError) Error() string {
	return fmt.Sprintf("gpib: invalid address %d (want 0..%d)", int(e.Addr), MaxAddr)
}

// ReplyError describes a controller or instrument reply
// that could not be interpreted.
type ReplyError struct {
	Cmd   string
	Reply string
	Err   error
}

func (e *ReplyError) Error() string {
	s := fmt.Sprintf("gpib: unexpected reply to %q: %q", e.Cmd, e.Reply)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ReplyError) Unwrap() error {
	return e.Err
}

// MsgInvalid reports whether err indicates a malformed
// or incomplete reply.
func MsgInvalid(err error) bool {
	var re *ReplyError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, ErrIncomplete)
}
