// Package com registers the "com" protocol, an alternative to
// asrl that opens serial ports using github.com/tarm/serial.
//
// Options: b<baud> sets the baud rate, p<n|o|e> the parity.
package com

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tarm/serial"

	"github.com/knieriem/gpib/line"
	"github.com/knieriem/gpib/netconn"
)

const DefaultBaud = 9600

func init() {
	netconn.RegisterProtocol(&netconn.Proto{
		Name:           "com",
		RequiredFields: netconn.FieldDev,
		OptionalFields: netconn.FieldOpt,
		Dial:           dial,
	})
}

func makeSerConf(cf *netconn.Conf) (sc *serial.Config, err error) {
	sc = &serial.Config{
		Name:     cf.Device,
		Baud:     DefaultBaud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	}
	for _, o := range cf.Options {
		if o == "" {
			continue
		}
		switch arg := o[1:]; o[0] {
		case 'b':
			sc.Baud, err = strconv.Atoi(arg)
			if err != nil || sc.Baud <= 0 {
				return nil, errors.New("com: invalid baud rate: " + arg)
			}
		case 'p':
			switch strings.ToLower(arg) {
			case "n":
				sc.Parity = serial.ParityNone
			case "o":
				sc.Parity = serial.ParityOdd
			case "e":
				sc.Parity = serial.ParityEven
			default:
				return nil, errors.New("com: invalid parity: " + arg)
			}
		default:
			return nil, errors.New("com: unknown option: " + o)
		}
	}
	return sc, nil
}

func dial(cf *netconn.Conf) (conn *netconn.Conn, err error) {
	sc, err := makeSerConf(cf)
	if err != nil {
		return
	}
	port, err := serial.OpenPort(sc)
	if err != nil {
		return
	}
	nc := line.NewNetConn(port)
	conn = &netconn.Conn{
		Addr:       cf.MakeAddr(sc.Name, true),
		DevName:    sc.Name,
		DeviceInfo: strconv.Itoa(sc.Baud) + " baud",
		NetConn:    nc,
		Closer:     port,
		ExitC:      nc.ExitC,
	}
	return
}
