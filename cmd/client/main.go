package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Avicted/callrelay/internal/ipc"
)

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(tea.Model, ...tea.ProgramOption) programRunner

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, newProgram programFactory) error {
	fs := flag.NewFlagSet("callrelay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ipcAddr := fs.String("ipc", ipc.DefaultAddr(), "callerd ipc socket/pipe address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ipcAddr == "" {
		return fmt.Errorf("ipc address is required")
	}

	conn := newDaemonConn(*ipcAddr)
	if err := conn.ensureConn(); err != nil {
		return err
	}
	defer conn.close()

	events := make(chan ipc.Message, 64)
	go conn.readLoop(events)
	m := newCallModel(conn, events)

	if newProgram == nil {
		newProgram = func(model tea.Model, options ...tea.ProgramOption) programRunner {
			return tea.NewProgram(model, options...)
		}
	}

	p := newProgram(m, tea.WithAltScreen(), tea.WithInput(stdin), tea.WithOutput(stdout))
	_, err := p.Run()
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
