// Package validator wraps the Vulkan SDK's spirv-val and spirv-dis tools.
//
// It is the only place in this module that performs IO beyond reading the
// input bytecode and writing the compiled binary: every call here spawns a
// subprocess and waits for it. A missing tool or a non-zero exit is
// reported back to the caller verbatim; it never mutates or taints the
// SPIR-V bytes the compiler already produced.
package validator

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Available reports whether spirv-val is on PATH. Callers that want to
// validate opportunistically (e.g. cmd/shaderbcc's -validate flag) should
// check this first and skip validation with a warning when it is false,
// rather than treating a missing tool as a compile failure.
func Available() bool {
	_, err := exec.LookPath("spirv-val")
	return err == nil
}

// Validate runs spirv-val against a compiled module, targeting Vulkan 1.2.
// ok is true only on a clean exit; report carries spirv-val's combined stdout
// and stderr regardless of outcome. err is non-nil only when spirv-val
// itself could not be found or started, not when validation finds real
// SPIR-V problems — those come back as ok=false with the tool's report.
func Validate(spirv []byte) (ok bool, report string, err error) {
	spirvVal, err := exec.LookPath("spirv-val")
	if err != nil {
		return false, "", fmt.Errorf("validator: spirv-val not found on PATH: %w", err)
	}

	dir, err := os.MkdirTemp("", "shaderbc-validate-*")
	if err != nil {
		return false, "", fmt.Errorf("validator: %w", err)
	}
	defer os.RemoveAll(dir)

	spvPath := filepath.Join(dir, "module.spv")
	if err := os.WriteFile(spvPath, spirv, 0o600); err != nil {
		return false, "", fmt.Errorf("validator: writing temp .spv: %w", err)
	}

	cmd := exec.Command(spirvVal, spvPath, "--target-env", "vulkan1.2") //nolint:gosec // G204: spvPath is our own temp file
	out, runErr := cmd.CombinedOutput()
	return runErr == nil, string(out), nil
}

// Disassemble runs spirv-dis against a compiled module and returns its
// textual .spvasm output. A missing tool is reported as an error rather
// than falling back to a partial disassembly, since the output is meant
// for a human reading exact spirv-dis formatting, not an approximation.
func Disassemble(spirv []byte) (string, error) {
	spirvDis, err := exec.LookPath("spirv-dis")
	if err != nil {
		return "", fmt.Errorf("validator: spirv-dis not found on PATH: %w", err)
	}

	dir, err := os.MkdirTemp("", "shaderbc-disassemble-*")
	if err != nil {
		return "", fmt.Errorf("validator: %w", err)
	}
	defer os.RemoveAll(dir)

	spvPath := filepath.Join(dir, "module.spv")
	if err := os.WriteFile(spvPath, spirv, 0o600); err != nil {
		return "", fmt.Errorf("validator: writing temp .spv: %w", err)
	}

	cmd := exec.Command(spirvDis, spvPath, "--no-header") //nolint:gosec // G204: spvPath is our own temp file
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("validator: spirv-dis failed: %w\n%s", err, out.String())
	}
	return out.String(), nil
}
