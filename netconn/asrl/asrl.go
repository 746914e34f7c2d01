// Package asrl registers the "asrl" protocol, which reaches
// a GPIB-232CT through a local serial port, or through the
// stdin and stdout of a command if the device starts with "!".
package asrl

import (
	"io"
	"time"

	"github.com/knieriem/gpib/line"
	"github.com/knieriem/gpib/netconn"
)

// DiscardDelay is the time to wait after a failed receive,
// so that the tail of a late reply does not end up in the
// reply to the next command.
var DiscardDelay = 10 * time.Millisecond

func init() {
	netconn.RegisterProtocol(&netconn.Proto{
		Name:           "asrl",
		OptionalFields: netconn.DevFields,
		Dial:           dial,
		InterfaceGroup: &serialPorts,
	})
	netconn.SetDefaultProto("asrl")
}

func dial(cf *netconn.Conf) (conn *netconn.Conn, err error) {
	var f io.ReadWriteCloser
	var name, info string

	supportsOptions := true
	if cmd, match := parseCommand(cf.Device); match {
		f, err = cmd.Dial()
		name = cf.Device
		supportsOptions = false
	} else {
		f, name, err = openPort(cf)
		info = portInfo(name)
	}
	if err != nil {
		return
	}

	nc := line.NewNetConn(f)
	nc.OnReceiveError = func(*line.Conn, error) {
		time.Sleep(DiscardDelay)
	}
	conn = &netconn.Conn{
		Addr:       cf.MakeAddr(name, supportsOptions),
		DevName:    name,
		DeviceInfo: info,
		NetConn:    nc,
		Closer:     f,
		ExitC:      nc.ExitC,
	}
	return
}
