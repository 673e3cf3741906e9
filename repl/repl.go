package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/drpcorg/lsindex"
	"github.com/drpcorg/lsindex/utils"
	"github.com/ergochat/readline"
)

// REPL per se.
type REPL struct {
	Store *lsindex.Store
	rl    *readline.Instance
	out   io.Writer
	log   utils.Logger
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("close"),

	readline.PcItem("create"),
	readline.PcItem("tables"),
	readline.PcItem("describe"),

	readline.PcItem("put"),
	readline.PcItem("del"),
	readline.PcItem("get"),
	readline.PcItem("search"),
	readline.PcItem("rebuild"),
	readline.PcItem("truncate"),

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
		Prompt:          promptStyle.Render("◇") + " ",
		HistoryFile:     ".lsindex_cmd_log.txt",
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
	if repl.Store != nil {
		_ = repl.Store.Close()
		repl.Store = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// REPL reads and runs one command.
func (repl *REPL) REPL(ctx context.Context) (err error) {
	var line string
	line, err = repl.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Run(ctx, line)
}

// Run executes one command line.
func (repl *REPL) Run(ctx context.Context, line string) (err error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, rest := line, ""
	if ws := strings.IndexAny(line, " \t\r\n"); ws > 0 {
		cmd, rest = line[:ws], strings.TrimSpace(line[ws:])
	}
	if cmd == "create" {
		return repl.CommandCreate(ctx, rest)
	}
	args, err := splitArgs(rest)
	if err != nil {
		return err
	}
	switch cmd {
	case "help":
		err = repl.CommandHelp(args)
	// store open/close
	case "open":
		err = repl.CommandOpen(args)
	case "close":
		err = repl.CommandClose(args)
	case "exit", "quit":
		if repl.Store != nil {
			err = repl.CommandClose(args)
		}
		if err == nil {
			err = io.EOF
		}
	// ----- tables -----
	case "tables":
		err = repl.CommandTables(args)
	case "describe":
		err = repl.CommandDescribe(args)
	// ----- data -----
	case "put":
		err = repl.CommandPut(ctx, args)
	case "del":
		err = repl.CommandDel(ctx, args)
	case "get":
		err = repl.CommandGet(ctx, args)
	case "search":
		err = repl.CommandSearch(ctx, args)
	case "rebuild":
		err = repl.CommandRebuild(ctx, args)
	case "truncate":
		err = repl.CommandTruncate(ctx, args)
	default:
		err = fmt.Errorf("command unknown: %s", cmd)
	}
	return
}

func (repl *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(repl.out, format, args...)
}

func main() {
	repl := REPL{
		out: os.Stdout,
		log: utils.NewDefaultLogger(slog.LevelInfo),
	}

	err := repl.Open()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	if len(os.Args) > 1 {
		err = repl.CommandOpen(os.Args[1:2])
	}

	ctx := context.Background()
	for err != io.EOF {
		if err != nil {
			repl.printf("%s\n", errorStyle.Render(err.Error()))
			err = nil
		}
		err = repl.REPL(ctx)
	}
	_ = repl.Close()
}
