// Package regression_test provides golden snapshot tests for the
// Front-end Lowerer.
//
// For each bytecode fixture in testdata/in/, the test runs frontend.Lower
// and compares the resulting Shader ByteCode program's textual form
// (sbc.Print) against a golden file in testdata/golden/.
//
// The golden content is the Shader ByteCode text rather than compiled
// SPIR-V: it is deterministic, human-readable, and fully pinned by the
// lowering algorithm alone, whereas SPIR-V's bound and ID allocation are
// internal artifacts of the backend and spirv packages that a fixture
// author has no reliable way to hand-compute. Every structural
// regression in the lowerer this suite exists to catch (label numbering,
// control-flow frame shape, opcode sequence) is already visible at this
// level.
//
// To regenerate golden files after an intentional change:
//
//	UPDATE_GOLDEN=1 go test ./regression/...
package regression_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/gogpu/shaderbc/frontend"
	"github.com/gogpu/shaderbc/sbc"
)

// shaderFixture is one bytecode trace loaded from testdata/in.
type shaderFixture struct {
	name string
	fn   frontend.SourceFunction
}

// TestSnapshots is the main golden snapshot test. It loads every fixture,
// lowers it, and compares the resulting program's textual form against a
// golden file. An empty testdata/in is still tolerated (skip rather than
// fail) so a fresh checkout without fixtures staged doesn't break the
// suite, but testdata/in carries a fixture for each of the canonical
// control-flow shapes the Front-end Lowerer recognizes.
func TestSnapshots(t *testing.T) {
	fixtures := loadFixtures(t, "testdata/in")
	if len(fixtures) == 0 {
		t.Skip("no fixtures in testdata/in; see package doc for the UPDATE_GOLDEN workflow")
	}

	for i := range fixtures {
		fx := &fixtures[i]
		t.Run(fx.name, func(t *testing.T) {
			prog, err := frontend.Lower(fx.fn)
			if err != nil {
				t.Fatalf("[%s] lower failed: %v", fx.name, err)
			}
			compareGolden(t, filepath.Join("testdata", "golden", fx.name+".sbc"), sbc.Print(prog))
		})
	}
}

// loadFixtures reads every *.json SourceFunction fixture from dir, sorted
// by name for a deterministic run order. A missing directory is not an
// error: it means no fixtures have been added yet.
func loadFixtures(t *testing.T, dir string) []shaderFixture {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read fixture directory %q: %v", dir, err)
	}

	var fixtures []shaderFixture
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			t.Fatalf("read fixture %q: %v", entry.Name(), readErr)
		}
		var fn frontend.SourceFunction
		if jsonErr := json.Unmarshal(data, &fn); jsonErr != nil {
			t.Fatalf("parse fixture %q: %v", entry.Name(), jsonErr)
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		fixtures = append(fixtures, shaderFixture{name: name, fn: fn})
	}

	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].name < fixtures[j].name })
	return fixtures
}

// compareGolden compares actual output with the golden file at path.
// If UPDATE_GOLDEN is set, writes actual output as the new golden file.
func compareGolden(t *testing.T, path, actual string) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDEN") != "" {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			t.Fatalf("create golden dir: %v", mkErr)
		}
		if wErr := os.WriteFile(path, []byte(actual), 0o644); wErr != nil {
			t.Fatalf("write golden file: %v", wErr)
		}
		t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Fatalf("golden file missing: %s\nRun with UPDATE_GOLDEN=1 to create.\n\nActual output:\n%s", path, truncate(actual, 500))
	}
	if err != nil {
		t.Fatalf("read golden file %s: %v", path, err)
	}

	expectedStr := strings.ReplaceAll(string(expected), "\r\n", "\n")
	actualStr := strings.ReplaceAll(actual, "\r\n", "\n")
	if expectedStr != actualStr {
		t.Errorf("output differs from golden %s:\n%s", path, diffStrings(expectedStr, actualStr))
	}
}

// diffStrings produces a simple line-by-line diff showing the first
// difference and surrounding context.
func diffStrings(expected, actual string) string {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")

	maxLines := len(expectedLines)
	if len(actualLines) > maxLines {
		maxLines = len(actualLines)
	}

	firstDiff := -1
	for i := 0; i < maxLines; i++ {
		var eLine, aLine string
		if i < len(expectedLines) {
			eLine = expectedLines[i]
		}
		if i < len(actualLines) {
			aLine = actualLines[i]
		}
		if eLine != aLine {
			firstDiff = i
			break
		}
	}
	if firstDiff < 0 {
		return "(no difference found)"
	}

	const contextLines = 3
	start := firstDiff - contextLines
	if start < 0 {
		start = 0
	}
	end := firstDiff + contextLines + 1
	if end > maxLines {
		end = maxLines
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "first difference at line %d:\n", firstDiff+1)
	fmt.Fprintf(&sb, "  expected lines: %d\n", len(expectedLines))
	fmt.Fprintf(&sb, "  actual lines:   %d\n\n", len(actualLines))
	for i := start; i < end; i++ {
		var eLine, aLine string
		if i < len(expectedLines) {
			eLine = expectedLines[i]
		}
		if i < len(actualLines) {
			aLine = actualLines[i]
		}
		prefix := " "
		if eLine != aLine {
			prefix = "!"
		}
		fmt.Fprintf(&sb, "%s %4d expected: %s\n", prefix, i+1, truncate(eLine, 120))
		if eLine != aLine {
			fmt.Fprintf(&sb, "%s %4d actual:   %s\n", prefix, i+1, truncate(aLine, 120))
		}
	}
	return sb.String()
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

