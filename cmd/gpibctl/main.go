// Gpibctl talks to instruments on a GPIB bus through a
// National Instruments GPIB-232CT controller.
//
// Usage:
//
//	gpibctl [flags] command [args]
//
// Commands:
//
//	ifaces              list serial ports
//	stat                show the controller status
//	id                  show the controller identification
//	wrt addr data       write data to an instrument
//	rd addr [count]     read a line, or count bytes
//	ask addr data       write data, then read a line
//	clr addr            send the selected device clear message
//	trg addr            send the group execute trigger message
//	rsp addr            serial poll an instrument
//	scan [min max]      serial poll a range of addresses
//	serve               make the bus available via TCP
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/knieriem/gpib"
	"github.com/knieriem/gpib/gateway"
	"github.com/knieriem/gpib/gpib232"
	"github.com/knieriem/gpib/internal/config"
	"github.com/knieriem/gpib/netconn"
	_ "github.com/knieriem/gpib/netconn/asrl"
	_ "github.com/knieriem/gpib/netconn/com"
	_ "github.com/knieriem/gpib/netconn/tcp"
)

var (
	confFile = flag.String("c", "", "configuration `file` (default $"+config.EnvFile+")")
	connSpec = flag.String("n", "", "network connection `spec`, like asrl:/dev/ttyUSB0,b9600")
	logFile  = flag.String("logfile", "", "write log messages to `file`")
	verbose  = flag.Bool("v", false, "log debug messages")
	trace    = flag.Bool("trace", false, "trace the controller protocol")
	all      = flag.Bool("all", false, "ifaces: list hidden interface groups too")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: gpibctl [flags] command [args]\n\n")
	fmt.Fprintf(os.Stderr, "commands: ifaces, stat, id, wrt, rd, ask, clr, trg, rsp, scan, serve\n\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cfg, err := config.Load(*confFile)
	if err != nil {
		fatal(err)
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *trace {
		cfg.Controller.Trace = true
		cfg.Log.Level = "debug"
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		fatal(err)
	}
	defer log.Sync()

	if args[0] == "ifaces" {
		netconn.FprintInterfaces(os.Stdout, *all)
		return
	}

	conn, err := cfg.Netconns.Dial(*connSpec)
	if err != nil {
		fatal(err)
	}
	defer conn.Close()
	log.Debug("connected", zap.String("addr", conn.Addr), zap.String("device", conn.DeviceInfo))

	c, err := gpib232.New(conn, cfg.ControllerOptions(log)...)
	if err != nil {
		fatal(err)
	}
	err = run(c, cfg, log, args)
	st := &c.RequestStats
	log.Debug("request stats",
		zap.Int("all", st.Num.All),
		zap.Int("timeout", st.Num.Timeout),
		zap.Int("invalid", st.Num.Invalid),
		zap.Int("status", st.Num.Status))
	if err != nil {
		log.Sync()
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "gpibctl:", err)
	os.Exit(1)
}

func run(c *gpib232.Controller, cfg *config.Config, log *zap.Logger, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "stat":
		r, err := c.Status()
		if err != nil {
			return err
		}
		fmt.Println(r)
		return nil
	case "id":
		v, err := c.Version()
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	case "scan":
		return scan(c, args)
	case "serve":
		return serve(c, cfg, log)
	}

	if len(args) == 0 {
		return fmt.Errorf("%s: missing address", cmd)
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	d, err := c.Device(addr)
	if err != nil {
		return err
	}
	args = args[1:]

	switch cmd {
	case "wrt", "ask":
		if len(args) == 0 {
			return fmt.Errorf("%s: missing data", cmd)
		}
		err = d.Write(strings.Join(args, " "))
		if err != nil || cmd == "wrt" {
			return err
		}
		s, err := d.Read()
		if err != nil {
			return err
		}
		fmt.Println(s)
	case "rd":
		if len(args) == 0 {
			s, err := d.Read()
			if err != nil {
				return err
			}
			fmt.Println(s)
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("rd: invalid count: %s", args[0])
		}
		buf, err := d.ReadBytes(n)
		if err != nil {
			return err
		}
		os.Stdout.Write(buf)
		fmt.Println()
	case "clr":
		return d.Clear()
	case "trg":
		return d.Trigger()
	case "rsp":
		stb, err := d.SerialPoll()
		if err != nil {
			return err
		}
		fmt.Printf("%#02x\n", stb)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func parseAddr(s string) (gpib.Addr, error) {
	a, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid address: %s", s)
	}
	return gpib.Addr(a), nil
}

// scan serial polls each address in a range. An address where
// the controller reports an error in its status, like ENOL if
// no listener is present, is skipped.
func scan(c *gpib232.Controller, args []string) (err error) {
	lo, hi := gpib.Addr(0), gpib.Addr(gpib.MaxAddr)
	if len(args) == 2 {
		if lo, err = parseAddr(args[0]); err != nil {
			return
		}
		if hi, err = parseAddr(args[1]); err != nil {
			return
		}
	}
	return gpib.ScanDevices(c, lo, hi, func(a gpib.Addr, d gpib.Device) error {
		before := c.RequestStats.Num.Status
		stb, err := d.SerialPoll()
		if err != nil {
			return err
		}
		if c.RequestStats.Num.Status == before {
			fmt.Printf("%2d\t%#02x\n", a, stb)
		}
		return nil
	})
}

func serve(c *gpib232.Controller, cfg *config.Config, log *zap.Logger) error {
	srv := &gateway.Server{
		Addr:         cfg.Gateway.Addr,
		Bus:          c,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		Logger:       log,
	}
	l, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	stopped := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("shutting down", zap.Stringer("signal", s))
		close(stopped)
		l.Close()
	}()
	log.Info("serving", zap.Stringer("addr", l.Addr()))
	err = srv.Serve(l)
	select {
	case <-stopped:
		return nil
	default:
		return err
	}
}
