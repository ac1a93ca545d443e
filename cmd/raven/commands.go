package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ravenwm/raven/internal/backend"
	"golang.org/x/term"
)

// parseClientFlags parses the flags shared by every IPC command. It returns
// a non-negative exit code when the command should stop.
func parseClientFlags(fs *flag.FlagSet, args []string) (string, int) {
	seat := fs.String("seat", os.Getenv("XDG_SEAT"), "Seat of the compositor to talk to")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return "", 0
		}
		return "", 2
	}
	return *seat, -1
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven status [--seat SEAT]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show compositor status via IPC.")
	}
	seat, code := parseClientFlags(fs, args)
	if code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client, err := newClient(seat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("seat:           %s\n", status.Seat)
	fmt.Printf("paused:         %v\n", status.Paused)
	fmt.Printf("primary_gpu:    %s\n", status.PrimaryGPU)
	fmt.Printf("devices:        %d\n", status.Devices)
	fmt.Printf("outputs:        %d\n", status.Outputs)
	fmt.Printf("cursor:         %s (%dpx, %d cached frames)\n", status.CursorTheme, status.CursorSize, status.CursorFrames)
	for _, r := range status.Renderers {
		fmt.Printf("renderer:       %s\n", r)
	}
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	for _, f := range status.ConfigFiles {
		fmt.Printf("config_file:    %s\n", f)
	}
	return 0
}

func runOutputs(args []string) int {
	fs := flag.NewFlagSet("outputs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven outputs [--seat SEAT] [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the outputs the compositor currently drives.")
	}
	seat, code := parseClientFlags(fs, args)
	if code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "outputs takes no arguments")
		fs.Usage()
		return 2
	}

	client, err := newClient(seat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	data, err := client.GetOutputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data.Outputs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	printOutputTable(os.Stdout, data.Outputs, width)
	return 0
}

// printOutputTable writes one row per output. Rows are cut to width when it
// is positive.
func printOutputTable(w io.Writer, outputs []backend.OutputInfo, width int) {
	if len(outputs) == 0 {
		fmt.Fprintln(w, "no outputs")
		return
	}
	header := []string{"NAME", "MODE", "SCALE", "TRANSFORM", "POSITION", "SIZE", "MONITOR"}
	rows := [][]string{header}
	for _, o := range outputs {
		monitor := strings.TrimSpace(strings.Join([]string{o.Make, o.Model}, " "))
		if monitor == "" {
			monitor = "-"
		}
		rows = append(rows, []string{
			o.Name,
			o.Mode.String(),
			fmt.Sprintf("%g", o.Scale),
			o.Transform,
			fmt.Sprintf("%d,%d", o.X, o.Y),
			fmt.Sprintf("%dx%d", o.Width, o.Height),
			monitor,
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(cell)+2))
		}
		line := b.String()
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		fmt.Fprintln(w, line)
	}
}

func runRedraw(args []string) int {
	fs := flag.NewFlagSet("redraw", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven redraw [--seat SEAT] [output]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Queue a full repaint of one output, or of every output when none is named.")
	}
	seat, code := parseClientFlags(fs, args)
	if code >= 0 {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "redraw takes at most one output name")
		fs.Usage()
		return 2
	}

	client, err := newClient(seat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	names, err := client.Redraw(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, name := range names {
		fmt.Printf("redraw queued: %s\n", name)
	}
	return 0
}

func runReload(args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven reload [--seat SEAT]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Ask the compositor to re-read its configuration.")
	}
	seat, code := parseClientFlags(fs, args)
	if code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "reload takes no arguments")
		fs.Usage()
		return 2
	}

	client, err := newClient(seat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	data, err := client.Reload()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, f := range data.Files {
		fmt.Printf("loaded: %s\n", f)
	}
	for _, w := range data.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Println("config: reloaded")
	return 0
}

func runReloadCursor(args []string) int {
	fs := flag.NewFlagSet("reload-cursor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: raven reload-cursor [--seat SEAT]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Drop cached cursor images and reload the theme from disk.")
	}
	seat, code := parseClientFlags(fs, args)
	if code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "reload-cursor takes no arguments")
		fs.Usage()
		return 2
	}

	client, err := newClient(seat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := client.ReloadCursorTheme(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
