package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mercator-hq/guardrails/pkg/cli"
)

func setCheckFlags(t *testing.T, stage, file, format string) {
	t.Helper()
	prev := checkFlags
	checkFlags.pipeline = "testdata/pipeline.yaml"
	checkFlags.stage = stage
	checkFlags.file = file
	checkFlags.format = format
	checkFlags.progress = false
	t.Cleanup(func() { checkFlags = prev })
}

// ==== Check ====

func TestRunCheck_Pass(t *testing.T) {
	setCheckFlags(t, "input", "", "text")
	cmd, out, _ := newTestCommand(t, "")

	if err := runCheck(cmd, []string{"hello", "world"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "PASSED at input") {
		t.Errorf("Expected PASSED, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "✓ blocked-terms") {
		t.Errorf("Expected passing guardrail line, got:\n%s", out.String())
	}
}

func TestRunCheck_Blocked(t *testing.T) {
	setCheckFlags(t, "input", "", "json")
	cmd, out, _ := newTestCommand(t, "")

	err := runCheck(cmd, []string{"what is the password?"})
	if cli.ExitCode(err) != cli.ExitBlocked {
		t.Fatalf("Expected exit code %d, got %d (%v)", cli.ExitBlocked, cli.ExitCode(err), err)
	}
	if !cli.Silent(err) {
		t.Error("Expected blocked error to be silent")
	}
	if !errors.Is(err, errBlocked) {
		t.Errorf("Expected errBlocked, got %v", err)
	}

	var report checkReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON output, got %v:\n%s", err, out.String())
	}
	if report.Checked != 1 || report.Blocked != 1 {
		t.Errorf("Expected 1 checked and 1 blocked, got %d and %d", report.Checked, report.Blocked)
	}
	res := report.Results[0]
	if !res.Blocked || len(res.Guardrails) != 1 || !res.Guardrails[0].Triggered {
		t.Errorf("Expected the blocked-terms verdict to trigger, got %+v", res)
	}
	if res.Guardrails[0].Guardrail != "blocked-terms" {
		t.Errorf("Expected blocked-terms, got %q", res.Guardrails[0].Guardrail)
	}
}

func TestRunCheck_Stdin(t *testing.T) {
	setCheckFlags(t, "input", "", "text")
	cmd, out, _ := newTestCommand(t, "keep this secret\n")

	err := runCheck(cmd, []string{"-"})
	if cli.ExitCode(err) != cli.ExitBlocked {
		t.Fatalf("Expected exit code %d, got %d", cli.ExitBlocked, cli.ExitCode(err))
	}
	if !strings.Contains(out.String(), "BLOCKED") {
		t.Errorf("Expected BLOCKED, got:\n%s", out.String())
	}
}

func TestRunCheck_OutputStage(t *testing.T) {
	setCheckFlags(t, "output", "", "json")
	cmd, out, _ := newTestCommand(t, "")

	err := runCheck(cmd, []string{"this completion is far longer than twenty characters"})
	if cli.ExitCode(err) != cli.ExitBlocked {
		t.Fatalf("Expected exit code %d, got %d (%v)", cli.ExitBlocked, cli.ExitCode(err), err)
	}
	var report checkReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON output, got %v", err)
	}
	if got := report.Results[0].Guardrails[0].Guardrail; got != "max-length" {
		t.Errorf("Expected max-length, got %q", got)
	}
}

func TestRunCheck_File(t *testing.T) {
	setCheckFlags(t, "input", "testdata/texts.txt", "csv")
	cmd, out, _ := newTestCommand(t, "")

	err := runCheck(cmd, nil)
	if cli.ExitCode(err) != cli.ExitBlocked {
		t.Fatalf("Expected exit code %d, got %d (%v)", cli.ExitBlocked, cli.ExitCode(err), err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// Header plus one row per text; comments and blank lines are skipped.
	if len(lines) != 4 {
		t.Fatalf("Expected 4 CSV lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "input,stage,blocked") {
		t.Errorf("Expected CSV header, got %q", lines[0])
	}
}

func TestRunCheck_Progress(t *testing.T) {
	setCheckFlags(t, "input", "testdata/texts.txt", "text")
	checkFlags.progress = true
	cmd, out, errOut := newTestCommand(t, "")

	_ = runCheck(cmd, nil)

	if !strings.Contains(errOut.String(), "3/3") {
		t.Errorf("Expected progress on stderr, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "3 checked, 2 blocked") {
		t.Errorf("Expected batch summary, got:\n%s", out.String())
	}
}

func TestRunCheck_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stage    string
		format   string
		pipeline string
		file     string
		args     []string
		expected int
	}{
		{name: "unknown stage", stage: "middle", format: "text", args: []string{"x"}, expected: cli.ExitFailure},
		{name: "unknown format", stage: "input", format: "xml", args: []string{"x"}, expected: cli.ExitFailure},
		{name: "missing pipeline", stage: "input", format: "text", pipeline: "testdata/missing.yaml", args: []string{"x"}, expected: cli.ExitFailure},
		{name: "file and args", stage: "input", format: "text", file: "testdata/texts.txt", args: []string{"x"}, expected: cli.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCheckFlags(t, tt.stage, tt.file, tt.format)
			if tt.pipeline != "" {
				checkFlags.pipeline = tt.pipeline
			}
			cmd, _, _ := newTestCommand(t, "")

			err := runCheck(cmd, tt.args)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := cli.ExitCode(err); got != tt.expected {
				t.Errorf("Expected exit code %d, got %d (%v)", tt.expected, got, err)
			}
		})
	}
}

// ==== Texts ====

func TestReadTexts(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		file     string
		expected []string
		wantErr  bool
	}{
		{name: "args joined", args: []string{"a", "b"}, expected: []string{"a b"}},
		{name: "stdin", stdin: "from stdin\n", expected: []string{"from stdin"}},
		{name: "dash reads stdin", stdin: "x\r\n", args: []string{"-"}, expected: []string{"x"}},
		{name: "file", file: "testdata/texts.txt", expected: []string{"hello there", "what is the admin password?", "tell me a secret"}},
		{name: "missing file", file: "testdata/none.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readTexts(strings.NewReader(tt.stdin), tt.args, tt.file)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.expected, "|") {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestReadLines_Empty(t *testing.T) {
	if _, err := readLines(strings.NewReader("# only a comment\n\n")); err == nil {
		t.Error("Expected error when no texts remain")
	}
}
