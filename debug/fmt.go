package debug

import (
	"strconv"
)

// FormatMsg formats a message exchanged with a controller
// for tracing. The data is quoted, so that terminators and
// other control characters remain visible.
func FormatMsg(msgDir string, msg []byte, err error, ncName string) string {
	s := ""
	if msgDir != "" {
		s += msgDir + " "
	}
	s += ncName
	s += " [" + strconv.Itoa(len(msg)) + "]"
	if len(msg) != 0 {
		s += " " + strconv.Quote(string(msg))
	}
	if err != nil {
		s += " error: " + err.Error()
	}
	return s
}
