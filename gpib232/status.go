package gpib232

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knieriem/gpib"
)

// Status is the GPIB status word reported by the stat command.
type Status uint16

const (
	DCAS Status = 1 << iota // device clear active state
	DTAS                    // device trigger active state
	LACS                    // listener active
	TACS                    // talker active
	ATN                     // ATN asserted
	CIC                     // controller in charge
	REM                     // remote state
	LOK                     // lockout state
	CMPL                    // operation completed
	_
	_
	_
	SRQI // SRQ detected while CIC
	END  // EOI or EOS detected
	TIMO // timeout
	ERR  // error detected
)

var statusNames = []string{
	"DCAS", "DTAS", "LACS", "TACS", "ATN", "CIC", "REM", "LOK",
	"CMPL", "", "", "", "SRQI", "END", "TIMO", "ERR",
}

// String lists the flags set in s, most significant first,
// separated by "|".
func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	var names []string
	for i := len(statusNames) - 1; i >= 0; i-- {
		if s&(1<<uint(i)) == 0 {
			continue
		}
		name := statusNames[i]
		if name == "" {
			name = "0x" + strconv.FormatUint(1<<uint(i), 16)
		}
		names = append(names, name)
	}
	return strings.Join(names, "|")
}

// ErrorCode is the GPIB error reported by the stat command.
// Unlike Status, it holds a single code.
type ErrorCode int

const (
	NGER ErrorCode = 0  // no error
	ECIC ErrorCode = 1  // command requires the controller to be CIC
	ENOL ErrorCode = 2  // write detected no listeners
	EADR ErrorCode = 3  // controller not addressed correctly
	EARG ErrorCode = 4  // invalid argument
	ESAC ErrorCode = 5  // command requires the controller to be system controller
	EABO ErrorCode = 6  // I/O aborted
	ECAP ErrorCode = 11 // no capability for operation
	EBUS ErrorCode = 14 // command bytes could not be sent
	ECMD ErrorCode = 17 // unrecognized command
)

func (e ErrorCode) String() (s string) {
	switch e {
	case NGER:
		s = "NGER"
	case ECIC:
		s = "ECIC"
	case ENOL:
		s = "ENOL"
	case EADR:
		s = "EADR"
	case EARG:
		s = "EARG"
	case ESAC:
		s = "ESAC"
	case EABO:
		s = "EABO"
	case ECAP:
		s = "ECAP"
	case EBUS:
		s = "EBUS"
	case ECMD:
		s = "ECMD"
	default:
		s = "E" + strconv.Itoa(int(e))
	}
	return
}

// Desc returns a human readable description of e.
func (e ErrorCode) Desc() string {
	switch e {
	case NGER:
		return "no error"
	case ECIC:
		return "controller is not CIC"
	case ENOL:
		return "no listeners"
	case EADR:
		return "not addressed correctly"
	case EARG:
		return "invalid argument"
	case ESAC:
		return "controller is not system controller"
	case EABO:
		return "I/O aborted"
	case ECAP:
		return "no capability for operation"
	case EBUS:
		return "command bytes could not be sent"
	case ECMD:
		return "unrecognized command"
	}
	return "unknown error " + strconv.Itoa(int(e))
}

// SerialError is the serial port error reported by the stat command.
type SerialError int

const (
	NSER SerialError = iota // no error
	EPAR                    // parity error
	EORN                    // overrun error
	EOFL                    // receive buffer overflow
	EFRM                    // framing error
)

var serialErrNames = []string{
	NSER: "NSER",
	EPAR: "EPAR",
	EORN: "EORN",
	EOFL: "EOFL",
	EFRM: "EFRM",
}

func (e SerialError) String() string {
	if e >= 0 && int(e) < len(serialErrNames) {
		return serialErrNames[e]
	}
	return "S" + strconv.Itoa(int(e))
}

// StatusReport is the decoded reply to "stat n".
type StatusReport struct {
	Status    Status
	Err       ErrorCode
	SerialErr SerialError
	Count     int
}

func (r StatusReport) String() string {
	return fmt.Sprintf("%v || %v || %v || count: %d", r.Status, r.Err, r.SerialErr, r.Count)
}

// Failed reports whether the controller flagged an error.
func (r StatusReport) Failed() bool {
	return r.Status&ERR != 0
}

// Check returns a *StatusError if the report flags an error,
// and nil otherwise.
func (r StatusReport) Check() error {
	if !r.Failed() {
		return nil
	}
	return &StatusError{Report: r}
}

type StatusError struct {
	Report StatusReport
}

func (e *StatusError) Error() string {
	s := "gpib232: " + e.Report.Err.Desc() + " (" + e.Report.Err.String() + ")"
	if e.Report.SerialErr != NSER {
		s += ", serial: " + e.Report.SerialErr.String()
	}
	return s
}

// ParseStatus decodes the four integers the controller returns
// in response to "stat n": status word, GPIB error, serial error,
// and byte count. They may be separated by line terminators
// or other white space.
func ParseStatus(reply []byte) (r StatusReport, err error) {
	f := strings.Fields(string(reply))
	if len(f) != 4 {
		err = &gpib.ReplyError{Cmd: "stat n", Reply: string(reply), Err: gpib.ErrIncomplete}
		return
	}
	var v [4]int
	for i, s := range f {
		v[i], err = strconv.Atoi(s)
		if err != nil {
			err = &gpib.ReplyError{Cmd: "stat n", Reply: string(reply), Err: err}
			return
		}
	}
	if v[0] < 0 || v[0] > 0xFFFF {
		err = &gpib.ReplyError{Cmd: "stat n", Reply: string(reply), Err: fmt.Errorf("status word %d out of range", v[0])}
		return
	}
	r.Status = Status(v[0])
	r.Err = ErrorCode(v[1])
	r.SerialErr = SerialError(v[2])
	r.Count = v[3]
	return
}
