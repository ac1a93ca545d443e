package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ravenwm/raven/internal/x11"
)

func runProbe(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/raven/config.yaml)")
	displayName := fs.String("display", "", "X display to query (default: $DISPLAY)")
	verbose := fs.Bool("v", false, "Log placement decisions")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven probe [--config PATH] [--display NAME] [-v]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Read the monitors known to a running X server through RandR and print")
		fmt.Fprintln(os.Stderr, "the mode, scale and position raven would give each of them.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "probe takes no arguments")
		fs.Usage()
		return 2
	}

	res, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	conn, err := x11.NewConnection(*displayName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer conn.Close()

	outputs, err := conn.Outputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printPlan(os.Stdout, x11.Plan(logger, outputs, res.Config.Monitors))
	return 0
}

func printPlan(w io.Writer, plan []x11.Planned) {
	if len(plan) == 0 {
		fmt.Fprintln(w, "no connected outputs")
		return
	}
	for _, p := range plan {
		if p.Skipped {
			fmt.Fprintf(w, "%s: disabled\n", p.Name)
			continue
		}
		fmt.Fprintf(w, "%s: %s scale %s transform %s at %d,%d size %dx%d\n",
			p.Name, p.Mode, p.Scale, p.Transform,
			p.Geometry.X, p.Geometry.Y, p.Geometry.Width, p.Geometry.Height)
		if p.Monitor != "" {
			fmt.Fprintf(w, "  monitor config: %s\n", p.Monitor)
		}
		if p.Physical.Make != "" || p.Physical.Model != "" {
			fmt.Fprintf(w, "  display: %s %s %s\n", p.Physical.Make, p.Physical.Model, p.Physical.Serial)
		}
	}
}
