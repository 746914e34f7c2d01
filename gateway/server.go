// Small parts have been copied from net/http/server.go:
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gateway makes a gpib.Bus available to TCP clients.
//
// Clients send one command per line:
//
//	wrt <addr> <data>
//	rd <addr> [count]
//	clr <addr>
//	trg <addr>
//	rsp <addr>
//
// Each command is answered by a single line: the data read,
// the status byte, "ok", or "error: " followed by a message.
package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knieriem/gpib"
)

const DefaultAddr = ":4010"

// A Server defines parameters for running a gateway. A value
// for Server with only the Bus field configured is a valid configuration.
type Server struct {
	Addr         string        // TCP address to listen on, DefaultAddr if empty
	Bus          gpib.Bus      // Requests are forwarded to this bus
	ReadTimeout  time.Duration // maximum duration before timing out read of the request
	WriteTimeout time.Duration // maximum duration before timing out write of the response
	Logger       *zap.Logger

	// ConnState specifies an optional callback function that is
	// called when a client connection changes state. See the
	// ConnState type and associated constants for details.
	ConnState func(net.Conn, ConnState)
}

// A ConnState represents the state of a client connection to a server.
// It's used by the optional Server.ConnState hook.
type ConnState int

func (c ConnState) String() string {
	return http.ConnState(c).String()
}

const (
	// ConnState values, see net/http.ConnState
	StateNew    = ConnState(http.StateNew)
	StateActive = ConnState(http.StateActive)
	StateIdle   = ConnState(http.StateIdle)
	StateClosed = ConnState(http.StateClosed)
)

// ListenAndServe listens on the TCP network address srv.Addr and then
// calls Serve to handle requests on incoming connections.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(l)
}

// Serve accepts incoming connections on the Listener l. Only one client
// is handled at a time, since all of them share the bus.
func (srv *Server) Serve(l net.Listener) error {
	defer l.Close()
	log := srv.logger()
	for {
		origConn, err := l.Accept()
		if err != nil {
			return err
		}
		c := &conn{
			Conn:   origConn,
			rb:     bufio.NewReader(origConn),
			server: srv,
		}
		c.setState(StateNew)
		log.Info("client connected", zap.Stringer("remote", origConn.RemoteAddr()))
		err = srv.handleConn(c)
		log.Info("client disconnected", zap.Stringer("remote", origConn.RemoteAddr()), zap.Error(err))
		c.setState(StateClosed)
		c.Close()
	}
}

func (srv *Server) logger() *zap.Logger {
	if srv.Logger == nil {
		return zap.NewNop()
	}
	return srv.Logger
}

type conn struct {
	net.Conn
	rb     *bufio.Reader
	server *Server
}

func (c *conn) readLine() (string, error) {
	if d := c.server.ReadTimeout; d != 0 {
		c.SetReadDeadline(time.Now().Add(d))
	}
	s, err := c.rb.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (c *conn) writeLine(s string) error {
	if d := c.server.WriteTimeout; d != 0 {
		c.SetWriteDeadline(time.Now().Add(d))
	}
	_, err := c.Write([]byte(s + "\n"))
	return err
}

func (c *conn) setState(state ConnState) {
	if hook := c.server.ConnState; hook != nil {
		hook(c.Conn, state)
	}
}

var errUnknownCmd = errors.New("unknown command")
var errMissingAddr = errors.New("missing address")

func (srv *Server) handleConn(c *conn) error {
	for {
		c.setState(StateIdle)
		line, err := c.readLine()
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.setState(StateActive)
		resp, err := srv.exec(line)
		if err != nil {
			srv.logger().Debug("request failed", zap.String("request", line), zap.Error(err))
			resp = "error: " + err.Error()
		}
		err = c.writeLine(resp)
		if err != nil {
			return err
		}
	}
}

// exec forwards a single request to the bus.
func (srv *Server) exec(line string) (resp string, err error) {
	cmd, args, _ := strings.Cut(line, " ")
	switch cmd {
	case "wrt", "rd", "clr", "trg", "rsp":
	default:
		return "", errUnknownCmd
	}
	addrArg, data, _ := strings.Cut(args, " ")
	if addrArg == "" {
		return "", errMissingAddr
	}
	a, err := strconv.Atoi(addrArg)
	if err != nil {
		return "", errors.New("invalid address: " + addrArg)
	}
	addr := gpib.Addr(a)
	bus := srv.Bus

	resp = "ok"
	switch cmd {
	case "wrt":
		err = bus.Write(addr, []byte(data))
	case "rd":
		n := 0
		if data != "" {
			n, err = strconv.Atoi(data)
			if err != nil || n <= 0 {
				return "", errors.New("invalid count: " + data)
			}
		}
		var buf []byte
		buf, err = bus.Read(addr, n)
		resp = strings.TrimRight(string(buf), "\r\n")
	case "clr":
		err = bus.Clear(addr)
	case "trg":
		err = bus.Trigger(addr)
	case "rsp":
		var stb byte
		stb, err = bus.SerialPoll(addr)
		resp = strconv.Itoa(int(stb))
	}
	if err != nil {
		resp = ""
	}
	return
}
