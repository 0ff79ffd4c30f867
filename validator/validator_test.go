package validator_test

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/gogpu/shaderbc/validator"
)

func TestAvailableDoesNotPanic(t *testing.T) {
	// Available() must not panic or block regardless of whether the tool
	// is installed on the machine running the tests.
	_ = validator.Available()
}

func TestValidateMissingToolReportsError(t *testing.T) {
	if validator.Available() {
		t.Skip("spirv-val is installed; this test only covers the absent case")
	}
	ok, report, err := validator.Validate([]byte{0x03, 0x02, 0x23, 0x07})
	if err == nil {
		t.Fatal("expected an error when spirv-val is not on PATH")
	}
	if ok {
		t.Fatal("ok must be false when the tool could not be run")
	}
	if report != "" {
		t.Fatalf("report should be empty when the tool never ran, got %q", report)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if !validator.Available() {
		t.Skip("spirv-val not found on PATH")
	}
	ok, report, err := validator.Validate([]byte("not a spir-v module"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("garbage input must not validate as ok")
	}
	if report == "" {
		t.Fatal("expected a non-empty report for a failed validation")
	}
}

func TestDisassembleMissingToolReportsError(t *testing.T) {
	if _, err := exec.LookPath("spirv-dis"); err == nil {
		t.Skip("spirv-dis is installed; this test only covers the absent case")
	}
	_, err := validator.Disassemble([]byte{0x03, 0x02, 0x23, 0x07})
	if err == nil {
		t.Fatal("expected an error when spirv-dis is not on PATH")
	}
	if !strings.Contains(err.Error(), "spirv-dis") {
		t.Fatalf("error should name the missing tool, got: %v", err)
	}
}
