// Command shaderbcc is the shaderbc compiler CLI.
//
// Usage:
//
//	shaderbcc [options] <input.json>
//
// Examples:
//
//	shaderbcc shader.json                   # Compile and validate
//	shaderbcc -o shader.spv shader.json     # Compile to SPIR-V
//	shaderbcc -debug shader.json            # Compile with debug info
//
// The input file is a JSON-encoded frontend.SourceFunction: there is no
// textual shader source in this pipeline, so "source" here means the
// bytecode trace and parameter signature a host runtime would otherwise
// hand over at function-definition time.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gogpu/shaderbc"
	"github.com/gogpu/shaderbc/frontend"
	"github.com/gogpu/shaderbc/validator"
)

var (
	output      = flag.String("o", "", "output file (default: stdout)")
	debugFlag   = flag.Bool("debug", false, "include debug info")
	validate    = flag.Bool("validate", true, "validate IR")
	versionFlag = flag.Bool("version", false, "print version")
)

// version returns the module version from build info.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("shaderbcc version %s\n", version())
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}

	inputPath := args[0]

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	var fn frontend.SourceFunction
	if err := json.Unmarshal(raw, &fn); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", inputPath, err)
		os.Exit(1)
	}

	opts := shaderbc.DefaultOptions()
	opts.Debug = *debugFlag
	opts.Validate = *validate

	module, err := shaderbc.CompileWithOptions(fn, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}
	spirvBytes := module.SPIRV()

	if *validate {
		validateWithTool(spirvBytes)
	}

	if *output != "" {
		if err := os.WriteFile(*output, spirvBytes, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Successfully compiled %s to %s (%d bytes)\n", inputPath, *output, len(spirvBytes))
	} else {
		if _, err := os.Stdout.Write(spirvBytes); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}
}

// validateWithTool runs the compiled module through spirv-val when it is
// on PATH. A missing tool is a warning, not a failure: IR validation
// (shaderbc.CompileOptions.Validate) has already run by this point.
func validateWithTool(spirvBytes []byte) {
	if !validator.Available() {
		fmt.Fprintln(os.Stderr, "Warning: spirv-val not found on PATH, skipping external validation")
		return
	}
	ok, report, err := validator.Validate(spirvBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: spirv-val could not run: %v\n", err)
		return
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "spirv-val reported errors:\n%s", report)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: shaderbcc [options] <input.json>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  shaderbcc shader.json               Compile to stdout\n")
	fmt.Fprintf(os.Stderr, "  shaderbcc -o shader.spv shader.json Compile to file\n")
	fmt.Fprintf(os.Stderr, "  shaderbcc -debug shader.json        Include debug info\n")
}
