// Package cli implements the questgraph command line: structural checks,
// headless simulation runs and one-off condition evaluation.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/questforge/questgraph/internal/condition"
	"github.com/questforge/questgraph/internal/config"
	"github.com/questforge/questgraph/internal/graph"
	"github.com/questforge/questgraph/internal/orchestrator"
	"github.com/questforge/questgraph/internal/quest"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `questgraph - quest graph checker and simulator.

Usage:
  questgraph validate FILE
  questgraph simulate [--trace] [--json] [--config PATH] FILE
  questgraph eval [--player JSON] [--quest JSON] [--input JSON] EXPRESSION
`

// Run executes the command named by args[0], writing results to out.
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return &ExitError{Code: 2, Message: "missing command"}
	}
	switch args[0] {
	case "validate":
		return validate(args[1:], out)
	case "simulate":
		return simulate(ctx, args[1:], out)
	case "eval":
		return eval(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", args[0])}
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string, wantArgs string) (string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", nil
		}
		return "", &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() != 1 {
		return "", &ExitError{Code: 2, Message: fs.Name() + ": expected " + wantArgs}
	}
	return fs.Arg(0), nil
}

func loadGraph(path string) (*quest.Document, quest.Graph, error) {
	doc, err := quest.LoadDocument(path)
	if err != nil {
		return nil, quest.Graph{}, &ExitError{Code: 1, Message: err.Error()}
	}
	return doc, doc.Graph(), nil
}

func validate(args []string, out io.Writer) error {
	fs := newFlagSet("validate", out)
	path, err := parse(fs, args, "FILE")
	if err != nil || path == "" {
		return err
	}
	doc, g, err := loadGraph(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, styleTitle.Render(fmt.Sprintf("%s: %d nodes, %d edges", doc.Name, len(g.Nodes), len(g.Edges))))

	healed := graph.Validate(g.Nodes, g.Edges)
	for _, id := range healed.DroppedEdgeIDs {
		fmt.Fprintln(out, styleWarning.Render("warning: dangling edge "+id+" would be dropped"))
	}

	ie := graph.Check(g)
	if ie == nil {
		fmt.Fprintln(out, styleOK.Render("ok"))
		return nil
	}
	for _, w := range ie.Warnings {
		fmt.Fprintln(out, styleWarning.Render("warning: "+w))
	}
	for _, e := range ie.Errors {
		fmt.Fprintln(out, styleError.Render("error: "+e))
	}
	if ie.HasErrors() {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%s: %d structural error(s)", path, len(ie.Errors))}
	}
	fmt.Fprintln(out, styleOK.Render("ok"))
	return nil
}

func simulate(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("simulate", out)
	showTrace := fs.Bool("trace", false, "print every trace entry")
	asJSON := fs.Bool("json", false, "print the run result as JSON")
	configPath := fs.String("config", "", "config.yaml providing simulation settings")
	path, err := parse(fs, args, "FILE")
	if err != nil || path == "" {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
	}
	opts := cfg.Options()
	opts.StepDelay = 0

	doc, g, err := loadGraph(path)
	if err != nil {
		return err
	}

	res, err := orchestrator.NewRuntime(opts).Simulate(ctx, g)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printRun(out, doc.Name, res, *showTrace)
	}

	if res.State == orchestrator.RunStateFailed {
		return &ExitError{Code: 1, Message: "run failed: " + res.Error}
	}
	return nil
}

func printRun(out io.Writer, name string, res orchestrator.RunResult, showTrace bool) {
	status := styleOK.Render(string(res.State))
	if res.State == orchestrator.RunStateFailed {
		status = styleError.Render(string(res.State))
	}
	fmt.Fprintf(out, "%s %s %s\n", styleTitle.Render(name), styleDim.Render(res.SessionID), status)

	if showTrace {
		for i, e := range res.Trace {
			line := fmt.Sprintf("%3d  %s %s", i+1, styleNode.Render(e.NodeID), styleDim.Render("("+string(e.NodeKind)+")"))
			if e.ConditionResult != nil {
				line += fmt.Sprintf(" -> %t", *e.ConditionResult)
			}
			if e.Message != "" {
				line += "  " + e.Message
			}
			if e.Status == orchestrator.StatusError {
				line = styleError.Render(line)
			}
			fmt.Fprintln(out, line)
		}
	} else {
		path := make([]string, 0, len(res.Trace))
		for _, e := range res.Trace {
			path = append(path, e.NodeID)
		}
		fmt.Fprintln(out, strings.Join(path, " -> "))
	}

	p := res.Player
	fmt.Fprintf(out, "player: level %d, %d xp, %d currency\n", p.Level, p.Experience, p.Currency)
	for _, item := range p.Inventory {
		fmt.Fprintf(out, "  item %s x%d\n", item.ID, item.Quantity)
	}
	flags := make([]string, 0, len(p.QuestFlags))
	for f := range p.QuestFlags {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	if len(flags) > 0 {
		fmt.Fprintln(out, styleDim.Render("flags: "+strings.Join(flags, ", ")))
	}
	if res.Error != "" {
		fmt.Fprintln(out, styleError.Render("error: "+res.Error))
	}
}

// jsonFlag decodes a flag value as arbitrary JSON.
type jsonFlag struct {
	v any
}

func (f *jsonFlag) String() string {
	if f == nil || f.v == nil {
		return ""
	}
	b, _ := json.Marshal(f.v)
	return string(b)
}

func (f *jsonFlag) Set(s string) error {
	return json.Unmarshal([]byte(s), &f.v)
}

func eval(args []string, out io.Writer) error {
	fs := newFlagSet("eval", out)
	var player, questCtx, input jsonFlag
	fs.Var(&player, "player", "player context as JSON")
	fs.Var(&questCtx, "quest", "quest context as JSON")
	fs.Var(&input, "input", "input context as JSON")
	expr, err := parse(fs, args, "EXPRESSION")
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return nil
	}

	res := condition.Evaluate(expr, condition.Context{
		Player: player.v,
		Quest:  questCtx.v,
		Input:  input.v,
	})
	enc := json.NewEncoder(out)
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Failed() {
		return &ExitError{Code: 1, Message: res.Err}
	}
	return nil
}

// Main runs the command line against the process environment and returns
// the exit code. Failures are logged to stderr.
func Main(ctx context.Context) int {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "questgraph"})

	err := Run(ctx, os.Args[1:], os.Stdout)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		logger.Error(exitErr.Message, "code", exitErr.Code)
		return exitErr.Code
	}
	logger.Error("command failed", "err", err)
	return 1
}
