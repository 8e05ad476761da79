package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/drpcorg/offline"
	"github.com/ergochat/readline"
)

// REPL per se.
type REPL struct {
	DB  *offline.Database
	ctx context.Context
	rl  *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("tables"),
	readline.PcItem("meta"),
	readline.PcItem("keys"),

	readline.PcItem("sync"),
	readline.PcItem("query"),
	readline.PcItem("patch"),
	readline.PcItem("delete"),
	readline.PcItem("clear"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".offline_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) REPL() error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	cmd, arg := splitCommand(line)
	if cmd == "" {
		return nil
	}
	return repl.Execute(cmd, arg)
}

func splitCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	ws := strings.IndexAny(line, " \t\r\n")
	if ws < 0 {
		return line, ""
	}
	return line[:ws], strings.TrimSpace(line[ws:])
}

func (repl *REPL) Execute(cmd, arg string) error {
	switch cmd {
	case "help":
		return repl.CommandHelp(arg)
	case "tables":
		return repl.CommandTables(arg)
	case "meta":
		return repl.CommandMeta(arg)
	case "keys":
		return repl.CommandKeys(arg)
	case "sync":
		return repl.CommandSync(arg)
	case "query", "ls", "list":
		return repl.CommandQuery(arg)
	case "patch", "put":
		return repl.CommandPatch(arg)
	case "delete", "rm":
		return repl.CommandDelete(arg)
	case "clear":
		return repl.CommandClear(arg)
	case "exit", "quit":
		return errExit
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return nil
}
