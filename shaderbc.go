// Package shaderbc compiles a dynamic-language shader function, captured
// as a host stack-bytecode trace (see package pybc and frontend.SourceFunction),
// down to SPIR-V binary.
//
// The compilation pipeline is:
//  1. frontend.Lower simulates the stack-VM trace and emits a flat
//     sbc.Program (the Shader ByteCode intermediate form).
//  2. backend.Generate consumes the sbc.Program and produces an *ir.Module.
//  3. ir.Validate checks the module's invariants (if enabled).
//  4. spirv.NewBackend().Compile emits the SPIR-V binary.
//
// Example usage:
//
//	fn := frontend.SourceFunction{ ... }
//	mod, err := shaderbc.Compile(fn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	spirvBytes := mod.SPIRV()
package shaderbc

import (
	"fmt"

	"github.com/gogpu/shaderbc/backend"
	"github.com/gogpu/shaderbc/frontend"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/sbc"
	"github.com/gogpu/shaderbc/spirv"
)

// CompileOptions configures shader compilation.
type CompileOptions struct {
	// SPIRVVersion is the target SPIR-V version (default: 1.3).
	SPIRVVersion spirv.Version

	// Debug enables debug info in output (OpName, OpMemberName, ...).
	Debug bool

	// Validate enables IR validation before SPIR-V generation.
	Validate bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() CompileOptions {
	return CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Debug:        false,
		Validate:     true,
	}
}

// ShaderModule is the result of compiling one SourceFunction: every
// intermediate artifact stays reachable so a caller (or cmd/shaderbcc)
// can inspect the Shader ByteCode trace or the IR without recompiling.
type ShaderModule struct {
	Input   frontend.SourceFunction
	program sbc.Program
	ir      *ir.Module
	spirv   []byte
}

// Bytecode renders the Shader ByteCode program this module was generated
// from in its textual form (the same grammar sbc.Parse accepts).
func (m *ShaderModule) Bytecode() string { return sbc.Print(m.program) }

// IR returns the intermediate representation the backend generated.
func (m *ShaderModule) IR() *ir.Module { return m.ir }

// SPIRV returns the compiled SPIR-V binary.
func (m *ShaderModule) SPIRV() []byte { return m.spirv }

// Compile compiles a SourceFunction to a ShaderModule using default options.
func Compile(fn frontend.SourceFunction) (*ShaderModule, error) {
	return CompileWithOptions(fn, DefaultOptions())
}

// CompileWithOptions compiles a SourceFunction to a ShaderModule with
// custom options.
func CompileWithOptions(fn frontend.SourceFunction, opts CompileOptions) (*ShaderModule, error) {
	program, err := frontend.Lower(fn)
	if err != nil {
		return nil, fmt.Errorf("lowering error: %w", err)
	}

	module, err := backend.Generate(program, fn.Stage)
	if err != nil {
		return nil, fmt.Errorf("backend error: %w", err)
	}

	if opts.Validate {
		validationErrors, err := ir.Validate(module)
		if err != nil {
			return nil, fmt.Errorf("validation error: %w", err)
		}
		if len(validationErrors) > 0 {
			return nil, fmt.Errorf("validation failed: %w", &validationErrors[0])
		}
	}

	spirvOpts := spirv.Options{
		Version: opts.SPIRVVersion,
		Debug:   opts.Debug,
	}
	spirvBytes, err := spirv.NewBackend(spirvOpts).Compile(module)
	if err != nil {
		return nil, fmt.Errorf("SPIR-V generation error: %w", err)
	}

	return &ShaderModule{Input: fn, program: program, ir: module, spirv: spirvBytes}, nil
}
