package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/bms.go/pkg/can"
	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/host"
	"github.com/robotalks/bms.go/pkg/master"
)

// Config provides the options to reach the pack.
type Config struct {
	// CAN is the interface shared with the master node.
	CAN     string
	Modules int
	Timeout time.Duration
}

var defaultConfig = Config{
	CAN:     "can0",
	Modules: master.DefaultModules,
	Timeout: host.DefaultTimeout,
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *Config
	Conn   *BusConn
	// Open opens a bus by interface name, SocketCAN if not set. The
	// returned Runnable, if any, runs while the bus is open.
	Open func(iface string) (can.Bus, fx.Runnable, error)
}

// BusConn is an open bus.
type BusConn struct {
	Ctx    context.Context
	Cancel func()
	Iface  string
	Bus    can.Bus
	Client *host.Client
}

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	if val := os.Getenv("BMS_CAN"); val != "" {
		defaultConfig.CAN = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.CAN, "can", defaultConfig.CAN, "CAN interface.")
	flag.IntVar(&defaultConfig.Modules, "modules", defaultConfig.Modules, "Number of modules in the pack.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Reply timeout.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open bus.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("bus not open"))
			return
		}
		fn(c)
	}
}

// Print prints v as JSON when requested, otherwise the text.
func Print(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Print(text)
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

func openSocket(iface string) (can.Bus, fx.Runnable, error) {
	bus, err := can.OpenSocket(iface)
	if err != nil {
		return nil, nil, err
	}
	return bus, bus, nil
}

// OpenBus opens the bus on iface and replaces the current one.
func (s *Shell) OpenBus(iface string) error {
	open := s.Open
	if open == nil {
		open = openSocket
	}
	bus, runnable, err := open(iface)
	if err != nil {
		return err
	}
	conn := &BusConn{
		Iface:  iface,
		Bus:    bus,
		Client: &host.Client{Bus: bus, Timeout: s.Config.Timeout},
	}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	if runnable != nil {
		go runnable.Run(conn.Ctx)
	}
	s.CloseBus()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", iface))
	return nil
}

// CloseBus closes current bus.
func (s *Shell) CloseBus() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn.Bus.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unopenedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.CAN != "" {
		if err := s.OpenBus(s.Config.CAN); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.CAN, err)
		}
		defer s.CloseBus()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a CAN interface.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[IFACE]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			iface := s.Config.CAN
			if len(c.Args) > 0 {
				iface = c.Args[0]
			}
			if iface == "" {
				c.Err(fmt.Errorf("interface required"))
				return
			}
			if err := s.OpenBus(iface); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes current bus.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).CloseBus()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
