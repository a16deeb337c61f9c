package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fsnotify/fsnotify"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"

	"github.com/nxlang/nxcc/compiler"
	"github.com/nxlang/nxcc/compiler/back"
	"github.com/nxlang/nxcc/compiler/parse"
)

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile IR files to NEANDER-X assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
			cli.NewFlag("watch", false, "recompile when the file changes"),
		},
	}

	explainCmd := &cli.Command{
		Name:        "explain",
		Description: "print the selected cover of every statement",
		Action:      explainAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("top", 5, "number of costliest statements to list"),
		},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile, assemble and simulate",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("limit", 1000000, "step limit"),
			cli.NewFlag("dump", "", "comma separated symbols to print after the run"),
		},
	}

	rulesCmd := &cli.Command{
		Name:        "rules",
		Description: "print the grammar",
		Action:      rulesAct,
	}

	replCmd := &cli.Command{
		Name:        "repl",
		Description: "type trees and see what they are compiled to",
		Action:      replAct,
	}

	app := &cli.Command{
		Name:        "nxcc",
		Description: "nxcc is an instruction selector and code generator for the NEANDER-X accumulator cpu",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("config,c", "", "back end config (yaml)"),
			cli.NewFlag("log", "stderr?console=dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			compileCmd,
			explainCmd,
			runCmd,
			rulesCmd,
			replCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func newCompiler(c *cli.Command) (*compiler.Compiler, error) {
	cfg := back.DefaultConfig()

	if name := c.String("config"); name != "" {
		var err error

		cfg, err = back.LoadConfig(name)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}

	return compiler.New(cfg)
}

func rootContext() context.Context {
	return tlog.ContextWithSpan(context.Background(), tlog.Root())
}

func compileAct(c *cli.Command) (err error) {
	ctx := rootContext()

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	compileAll := func() error {
		var out []byte

		for _, a := range c.Args {
			obj, err := comp.CompileFile(ctx, a)
			if err != nil {
				return errors.Wrap(err, "compile %v", a)
			}

			out = append(out, obj...)
		}

		if name := c.String("output"); name != "" {
			return os.WriteFile(name, out, 0o644)
		}

		_, err := os.Stdout.Write(out)

		return err
	}

	err = compileAll()
	if !c.Bool("watch") {
		return err
	}

	if err != nil {
		tlog.Printw("compile", "err", err)
	}

	return watch(ctx, c.Args, compileAll)
}

// watch calls f each time one of the files changes.
// Editors often replace files, so the directories are watched.
func watch(ctx context.Context, files []string, f func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "new watcher")
	}

	defer w.Close()

	names := map[string]bool{}

	for _, name := range files {
		abs, err := filepath.Abs(name)
		if err != nil {
			return err
		}

		names[abs] = true

		err = w.Add(filepath.Dir(abs))
		if err != nil {
			return errors.Wrap(err, "watch %v", name)
		}
	}

	tlog.Printw("watching", "files", files)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-w.Errors:
			return errors.Wrap(err, "watcher")
		case ev := <-w.Events:
			if !names[ev.Name] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// drain the burst of events a single save produces
			for drained := false; !drained; {
				select {
				case <-w.Events:
				case <-time.After(20 * time.Millisecond):
					drained = true
				}
			}

			err := f()
			tlog.Printw("recompiled", "file", ev.Name, "err", err)
		}
	}
}

func explainAct(c *cli.Command) (err error) {
	ctx := rootContext()

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	var all []back.Selection

	for _, a := range c.Args {
		u, err := parse.ParseFile(ctx, a, comp.Back().Config().Types)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		sels, err := comp.Back().Explain(ctx, u)
		if err != nil {
			return errors.Wrap(err, "explain %v", a)
		}

		printSelections(os.Stdout, sels)

		all = append(all, sels...)
	}

	fmt.Printf("\ncostliest statements:\n")

	for _, s := range back.Costliest(all, c.Int("top")) {
		fmt.Printf("%6d  %s stmt %d\n", s.Cost, s.Func, s.Index)
	}

	return nil
}

func printSelections(w io.Writer, sels []back.Selection) {
	fn := ""

	for _, s := range sels {
		if s.Func != fn {
			fn = s.Func
			fmt.Fprintf(w, "func %s\n", fn)
		}

		fmt.Fprintf(w, "  stmt %d  cost %d\n", s.Index, s.Cost)

		for _, ch := range s.Choices {
			fmt.Fprintf(w, "    %s%-10v %-6s %4d  %s\n", strings.Repeat("  ", ch.Depth), ch.Op, ch.Goal, ch.Cost, ch.Rule.Text)
		}
	}
}

func runAct(c *cli.Command) (err error) {
	ctx := rootContext()

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		p, err := comp.Build(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "build %v", a)
		}

		cpu, err := comp.Run(ctx, p, c.Int("limit"))

		fmt.Printf("%s: AC=%04x X=%04x Y=%04x SP=%04x FP=%04x PC=%04x N=%v Z=%v C=%v steps=%d\n",
			a, cpu.AC, cpu.X, cpu.Y, cpu.SP, cpu.FP, cpu.PC, cpu.N, cpu.Z, cpu.C, cpu.Steps)

		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}

		for _, name := range strings.Split(c.String("dump"), ",") {
			if name == "" {
				continue
			}

			addr, ok := p.Labels[name]
			if !ok {
				addr, ok = p.Labels["_"+name]
			}

			if !ok {
				return errors.New("no symbol %v", name)
			}

			w := cpu.Word(addr)

			fmt.Printf("  %-12s %04x: %6d  0x%04x  long %d\n", name, addr, int16(w), w, int32(cpu.Long(addr)))
		}
	}

	return nil
}

func rulesAct(c *cli.Command) (err error) {
	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	for _, r := range comp.Back().Grammar().Rules {
		cost := fmt.Sprintf("%d", r.Cost)
		if r.CostFunc != nil {
			cost = "dyn"
		}

		fmt.Printf("%4d  %-44s %4s  %q\n", r.ID, r.Text, cost, r.Template)
	}

	return nil
}

func replAct(c *cli.Command) (err error) {
	ctx := rootContext()

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[32m>\033[0m ",
		HistoryFile:       filepath.Join(os.TempDir(), ".nxcc-history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return errors.Wrap(err, "readline")
	}

	defer l.Close()

	var decls []string

	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case line == ":reset":
			decls = decls[:0]
			continue
		case line == ":decls":
			fmt.Println(strings.Join(decls, "\n"))
			continue
		case isDecl(line):
			decls = append(decls, line)
			continue
		}

		err = replTree(ctx, comp, decls, line)
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func isDecl(line string) bool {
	w, _, _ := strings.Cut(line, " ")

	switch w {
	case "param", "local", "static", "vreg":
		return true
	}

	return false
}

func replTree(ctx context.Context, comp *compiler.Compiler, decls []string, tree string) error {
	text := "func repl\n" + strings.Join(decls, "\n") + "\n" + tree + "\nend\n"

	u, err := parse.Parse(ctx, "repl", []byte(text), comp.Back().Config().Types)
	if err != nil {
		return err
	}

	sels, err := comp.Back().Explain(ctx, u)
	if err != nil {
		return err
	}

	printSelections(os.Stdout, sels)

	obj, err := comp.Back().CompileUnit(ctx, nil, u)
	if err != nil {
		return err
	}

	code := string(obj)

	if i := strings.Index(code, "\n_repl:\n"); i >= 0 {
		code = code[i+1:]
	}

	if i := strings.Index(code, "\n\n"); i >= 0 {
		code = code[:i+1]
	}

	fmt.Print(code)

	return nil
}
