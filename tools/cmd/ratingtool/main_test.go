package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const export = `Station Name,CC01
Log Export,2026-03-01T00:00:00Z,2026-03-02T00:00:00Z
Date,Time,Label,Value,Units,Quality
03/01/2026,12:00:00,Level,0.5,in,G
03/01/2026,12:00:00,Flow,10,gpm,G
03/01/2026,12:00:00,Velocity,1.414214,fps,G
03/01/2026,12:01:00,Level,1.0,in,G
03/01/2026,12:01:00,Flow,10,gpm,G
03/01/2026,12:01:00,Velocity,2,fps,G
03/01/2026,12:02:00,Level,-99999,in,B
03/01/2026,12:02:00,Flow,20,gpm,G
03/01/2026,12:02:00,Velocity,Off,fps,G
03/01/2026,12:03:00,Level,2.0,in,G
03/01/2026,12:03:00,Flow,20,gpm,G
03/01/2026,12:03:00,Velocity,2.828427,fps,G
`

const table = "Stage (in),Flow (cfs)\n0,0\n1,10\n2,30\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func runOK(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("run %v: exit %d, stderr: %s", args, code, stderr.String())
	}
	return stdout.String()
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Errorf("no args: exit %d, want 2", code)
	}
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != 2 {
		t.Errorf("unknown command: exit %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "resample") {
		t.Errorf("usage does not list commands: %s", stderr.String())
	}
}

func TestResample(t *testing.T) {
	in := writeFile(t, "table.csv", table)
	got := runOK(t, "resample", "-in", in, "-step", "0.5", "-every", "2")
	want := "Stage (in),Flow (cfs)\n0.00,0.000\n1.00,10.000\n2.00,30.000\n"
	if got != want {
		t.Errorf("resample output =\n%s\nwant\n%s", got, want)
	}

	got = runOK(t, "resample", "-in", in, "-step", "0.5", "-max", "3", "-gpm", "-format", "tuples")
	if got != "(0.00, 0.000),\n(1.00, 10.000),\n(2.00, 30.000),\n" {
		t.Errorf("tuples output =\n%s", got)
	}
}

func TestResample_Plot(t *testing.T) {
	in := writeFile(t, "table.csv", table)
	out := filepath.Join(t.TempDir(), "rating.png")
	runOK(t, "resample", "-in", in, "-step", "0.1", "-plot", out)
	if _, err := os.Stat(out); err != nil {
		t.Errorf("plot not written: %v", err)
	}
}

func TestRecalc(t *testing.T) {
	logPath := writeFile(t, "export.csv", export)
	tbl := writeFile(t, "table.csv", table)
	out := filepath.Join(t.TempDir(), "flow.csv")
	runOK(t, "recalc", "-log", logPath, "-table", tbl, "-stage", "Level", "-labels", "Flow", "-out", out, "-tz", "UTC")

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 5 || lines[0] != "Time,Level,Flow,FlowRecalc" {
		t.Fatalf("recalc output:\n%s", b)
	}
	if lines[1] != "2026-03-01T12:00:00Z,0.5,10,5" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[3] != "2026-03-01T12:02:00Z,,20," {
		t.Errorf("missing stage row = %q", lines[3])
	}
}

func TestVolume(t *testing.T) {
	logPath := writeFile(t, "export.csv", export)
	got := runOK(t, "volume", "-log", logPath, "-flow", "Flow", "-tz", "UTC")
	if !strings.Contains(got, "45.000 gal") {
		t.Errorf("volume output = %q, want 45 gallons", got)
	}

	got = runOK(t, "volume", "-log", logPath, "-flow", "Flow", "-tz", "UTC",
		"-start", "2026-03-01 12:01", "-end", "2026-03-01T12:02:00Z")
	if !strings.Contains(got, "15.000 gal") {
		t.Errorf("windowed volume output = %q, want 15 gallons", got)
	}
}

func TestFit(t *testing.T) {
	pairs := writeFile(t, "pairs.csv", "level,velocity\n1,2\n4,4\n9,6\n16,8\n")
	got := runOK(t, "fit", "-in", pairs)
	if !strings.HasPrefix(got, "a=2 b=0.5 r2=1.0000 n=4") {
		t.Errorf("fit output = %q", got)
	}

	logPath := writeFile(t, "export.csv", export)
	got = runOK(t, "fit", "-log", logPath, "-x", "Level", "-y", "Velocity", "-tz", "UTC")
	if !strings.Contains(got, "n=3") {
		t.Errorf("fit from log = %q, want 3 usable pairs", got)
	}
}

func TestPlot(t *testing.T) {
	logPath := writeFile(t, "export.csv", export)
	out := filepath.Join(t.TempDir(), "levels.png")
	runOK(t, "plot", "-log", logPath, "-labels", "Level,Flow", "-out", out)
	if _, err := os.Stat(out); err != nil {
		t.Errorf("chart not written: %v", err)
	}
}

func TestErrors(t *testing.T) {
	logPath := writeFile(t, "export.csv", export)
	tests := [][]string{
		{"resample"},
		{"resample", "-in", "/nonexistent.csv"},
		{"recalc", "-log", logPath},
		{"volume", "-log", logPath, "-flow", "Nope"},
		{"volume", "-log", logPath, "-start", "yesterday"},
		{"fit"},
		{"plot", "-log", logPath, "-out", "x.png", "-labels", "Nope"},
		{"plot", "-log", logPath, "-out", "x.png", "-tz", "Mars/Olympus"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != 1 {
			t.Errorf("run %v: exit %d, want 1", args, code)
		}
	}
}
