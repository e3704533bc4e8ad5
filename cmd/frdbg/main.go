package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	sys "golang.org/x/sys/unix"
	"golang.org/x/sync/errgroup"

	"github.com/openembed/frdbg/client"
	"github.com/openembed/frdbg/config"
	"github.com/openembed/frdbg/server"
	"github.com/openembed/frdbg/symbol"
	"github.com/openembed/frdbg/target/gdbserial"
	"github.com/openembed/frdbg/terminal"
)

const version string = "0.3.0"

var usage string = fmt.Sprintf(`frdbg version %s

FreeRTOS-aware debugger for GDB remote stubs (OpenOCD, JLinkGDBServer,
qemu -s). Inspects kernel task state and sets task-scoped breakpoints.

Usage:

  frdbg -elf ./firmware.elf [-stub localhost:3333]

flags:
  -elf     path to the target ELF image (with symbols and DWARF)
  -stub    host:port of the GDB remote stub
  -listen  debug server listen address
  -port    debug server listen port
  -config  optional YAML config file
  -v       print version
`, version)

func main() {
	var (
		printv     bool
		elfPath    string
		stubAddr   string
		cfgPath    string
		listenAddr string
		listenPort int
	)

	flag.BoolVar(&printv, "v", false, "Print version number and exit.")
	flag.StringVar(&elfPath, "elf", "", "Path to the target ELF image.")
	flag.StringVar(&stubAddr, "stub", "", "host:port of the GDB remote stub.")
	flag.StringVar(&cfgPath, "config", "", "Path to a YAML config file.")
	flag.StringVar(&listenAddr, "listen", "", "Debug server listen address.")
	flag.IntVar(&listenPort, "port", 0, "Debug server listen port.")
	flag.Parse()

	if printv {
		fmt.Printf("frdbg version: %s\n", version)
		os.Exit(0)
	}
	if elfPath == "" {
		fmt.Println(usage)
		os.Exit(0)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if stubAddr != "" {
		cfg.StubAddr = stubAddr
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if listenPort != 0 {
		cfg.ListenPort = listenPort
	}

	syms, err := symbol.Load(elfPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	conn, err := gdbserial.Dial(cfg.StubAddr)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	shutdown := make(chan bool)
	debugger := server.NewDebugger(conn, syms, conn, cfg.MaxListItems, shutdown)
	debugger.CoresOverride = cfg.Cores

	var group errgroup.Group
	group.Go(debugger.Run)

	wsServer := &server.WebsocketServer{
		Debugger:   debugger,
		ListenAddr: cfg.ListenAddr,
		ListenPort: cfg.ListenPort,
		Shutdown:   shutdown,
	}
	go wsServer.Run()

	// Give the listener a beat before dialing it.
	time.Sleep(500 * time.Millisecond)
	client := client.NewWebsocketClient(wsServer.URL())
	if err := client.Open(); err != nil {
		fmt.Printf("error creating client: %s\n", err)
		os.Exit(1)
	}

	// Ctrl-C breaks into the running target instead of killing frdbg;
	// leave the session with 'exit'.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sys.SIGINT)
	go func() {
		for range ch {
			client.Halt()
		}
	}()

	term := terminal.New(client, cfg.HistoryFile)
	status := term.Run()

	shutdown <- true
	fmt.Print("waiting for debugger to shut down...")
	if err := group.Wait(); err != nil {
		fmt.Printf(" error: %s", err)
	}
	fmt.Println(" done.")

	os.Exit(status)
}
