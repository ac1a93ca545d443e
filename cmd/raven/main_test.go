package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/x11"
)

func TestFormatSource(t *testing.T) {
	cases := []struct {
		src  config.Source
		want string
	}{
		{config.Source{Kind: config.SourceFile, File: "/c.yaml", Line: 3, Column: 5}, "file:/c.yaml:3:5"},
		{config.Source{Kind: config.SourceFile, File: "/c.yaml"}, "file:/c.yaml"},
		{config.Source{Kind: config.SourceDefault, Name: "defaults"}, "default:defaults"},
		{config.Source{Kind: config.SourceDefault}, "default"},
	}
	for _, tc := range cases {
		if got := formatSource(tc.src); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestPrintOutputTable(t *testing.T) {
	outputs := []backend.OutputInfo{
		{
			Name:      "eDP-1",
			Make:      "BOE",
			Model:     "0x0a1c",
			Mode:      display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
			Scale:     1.5,
			Transform: "normal",
			Width:     1280,
			Height:    720,
		},
		{
			Name:      "HDMI-A-1",
			Mode:      display.Mode{Width: 2560, Height: 1440, RefreshMHz: 144000},
			Scale:     1,
			Transform: "90",
			X:         1280,
			Width:     1440,
			Height:    2560,
		},
	}

	var buf bytes.Buffer
	printOutputTable(&buf, outputs, 0)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("expected header first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "BOE 0x0a1c") || !strings.Contains(lines[1], "1.5") {
		t.Fatalf("expected edp row with monitor and scale, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "1280,0") || !strings.HasSuffix(lines[2], "-") {
		t.Fatalf("expected hdmi row with position and no monitor, got %q", lines[2])
	}

	buf.Reset()
	printOutputTable(&buf, outputs, 10)
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if len(line) > 10 {
			t.Fatalf("expected rows cut to 10 columns, got %q", line)
		}
	}
}

func TestPrintOutputTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	printOutputTable(&buf, nil, 80)
	if buf.String() != "no outputs\n" {
		t.Fatalf("expected no outputs message, got %q", buf.String())
	}
}

func TestPrintPlan(t *testing.T) {
	plan := []x11.Planned{
		{
			Name:     "DP-1",
			Monitor:  "DP-1",
			Mode:     display.Mode{Width: 3840, Height: 2160, RefreshMHz: 60000},
			Scale:    display.IntegerScale(2),
			Geometry: display.Rect{Width: 1920, Height: 1080},
		},
		{Name: "DP-2", Skipped: true},
	}
	var buf bytes.Buffer
	printPlan(&buf, plan)
	out := buf.String()
	if !strings.Contains(out, "DP-1: 3840x2160@60.000 scale 2 transform normal at 0,0 size 1920x1080") {
		t.Fatalf("expected DP-1 placement, got:\n%s", out)
	}
	if !strings.Contains(out, "monitor config: DP-1") {
		t.Fatalf("expected monitor line, got:\n%s", out)
	}
	if !strings.Contains(out, "DP-2: disabled") {
		t.Fatalf("expected DP-2 disabled, got:\n%s", out)
	}
}
