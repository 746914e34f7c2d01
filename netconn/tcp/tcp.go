// Package tcp registers the "tcp" protocol, which reaches a
// GPIB-232CT attached to a serial device server.
package tcp

import (
	"net"

	"github.com/knieriem/gpib/line"
	"github.com/knieriem/gpib/netconn"
)

const DefaultPort = "4001"

func init() {
	netconn.RegisterProtocol(&netconn.Proto{
		Name:           "tcp",
		RequiredFields: netconn.FieldAddr,
		Dial:           dial,
	})
}

func dial(cf *netconn.Conf) (conn *netconn.Conn, err error) {
	addr, err := cf.Addr.Complete(DefaultPort)
	if err != nil {
		return
	}
	tc, err := net.Dial("tcp", addr)
	if err != nil {
		return
	}
	nc := line.NewNetConn(tc)
	conn = &netconn.Conn{
		Addr:    cf.MakeAddr(addr, false),
		DevName: addr,
		NetConn: nc,
		Closer:  tc,
		ExitC:   nc.ExitC,
	}
	return
}
