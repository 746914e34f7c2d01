package asrl

import (
	"io"
	"strings"

	"github.com/knieriem/serport"
	"github.com/knieriem/serport/serenum"

	"github.com/knieriem/gpib/netconn"
)

// DefaultCtl is merged into serport.StdConf before the options
// of a Conf. The GPIB-232CT ships configured for 9600 baud.
var DefaultCtl = "b9600"

func portInfo(name string) string {
	return serenum.Lookup(name).Format(nil)
}

func openPort(cf *netconn.Conf) (c io.ReadWriteCloser, portName string, err error) {
	inictl := DefaultCtl
	if len(cf.Options) != 0 {
		inictl += " " + strings.Join(cf.Options, " ")
	}

	portName, err = serport.Choose(cf.Device)
	if err != nil {
		return nil, "", err
	}
	port, err := serport.Open(portName, serport.MergeCtlCmds(serport.StdConf, inictl))
	if err != nil {
		return nil, portName, err
	}
	return port, portName, nil
}

var serialPorts = netconn.InterfaceGroup{
	Name:       "Serial ports",
	Interfaces: serialInterfaces,
	SortPrefix: "A01",
	Type:       "serport",
}

func serialInterfaces() (list []netconn.Interface) {
	for _, info := range serenum.Ports() {
		list = append(list, netconn.Interface{
			Name: info.Device,
			Desc: info.Format(nil),
			Elem: info,
		})
	}
	return
}
