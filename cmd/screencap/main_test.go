package main

import (
	"bytes"
	"strings"
	"testing"

	"screencap/internal/domain"
	"screencap/internal/profile"
)

// TestResolveLogFormat checks explicit formats win and non-terminals get JSON.
func TestResolveLogFormat(t *testing.T) {
	if got := resolveLogFormat(" JSON ", &bytes.Buffer{}); got != "json" {
		t.Fatalf("explicit format = %q, want json", got)
	}
	if got := resolveLogFormat("", &bytes.Buffer{}); got != "json" {
		t.Fatalf("buffer format = %q, want json", got)
	}
}

// TestProfileRowsMarksActive checks the active profile is starred.
func TestProfileRowsMarksActive(t *testing.T) {
	rows := profileRows(profile.Builtin(), domain.ProfileHigh)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for _, row := range rows {
		want := ""
		if row[1] == string(domain.ProfileHigh) {
			want = "*"
		}
		if row[0] != want {
			t.Fatalf("row %s marker = %q, want %q", row[1], row[0], want)
		}
	}
	if rows[3][6] != "yes" {
		t.Fatalf("server external = %q, want yes", rows[3][6])
	}
}

// TestDiagnosticRowsShowHintsForProblems checks hints appear only on non-passing items.
func TestDiagnosticRowsShowHintsForProblems(t *testing.T) {
	rows := diagnosticRows(domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: "tool_ffmpeg", Name: "ffmpeg", Status: domain.DiagnosticStatusPass, Message: "found", Hint: "install it"},
		{ID: "export_dir", Name: "Export directory", Status: domain.DiagnosticStatusWarn, Message: "low space", Hint: "free some"},
	}})
	if strings.Contains(rows[0][2], "install it") {
		t.Fatalf("passing row = %q, want no hint", rows[0][2])
	}
	if !strings.Contains(rows[1][2], "free some") {
		t.Fatalf("warning row = %q, want hint", rows[1][2])
	}
}

// TestRenderTableIncludesHeaders checks table output contains headers and cells.
func TestRenderTableIncludesHeaders(t *testing.T) {
	out := renderTable([]string{"ID", "Size"}, [][]string{{"a1", "3 MiB"}, {"a2"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"ID", "Size", "a1", "3 MiB", "a2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

// TestRootCommandRegistersSubcommands checks the command tree.
func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "record", "export", "profiles", "doctor"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("find %s = %v, %v", name, cmd, err)
		}
	}
}
