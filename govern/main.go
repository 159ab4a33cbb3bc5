// Command govern evaluates a single record offline and prints the outcome as JSON.
//
//	govern [-strict] [-pretty] [file]
//
// The record is read from file, or from stdin when file is omitted or "-".
// JSON and YAML records are both accepted.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/processing"
)

const (
	exitOK         = 0
	exitUsage      = 1
	exitQuarantine = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, governance.NewEngine()))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, engine *governance.Engine) int {
	fs := flag.NewFlagSet("govern", flag.ContinueOnError)
	fs.SetOutput(stderr)
	strict := fs.Bool("strict", false, "exit with status 2 when the record is quarantined")
	pretty := fs.Bool("pretty", false, "indent JSON output")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "govern: at most one input file")
		return exitUsage
	}

	raw, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		fmt.Fprintf(stderr, "govern: %v\n", err)
		return exitUsage
	}

	var out governance.Outcome
	rec, err := processing.DecodeRecord(raw)
	if err != nil {
		out = governance.FailSafe(fmt.Errorf("decode record: %w", err))
	} else {
		out = engine.Process(rec)
	}

	out, data, err := governance.Encode(out)
	if err != nil {
		fmt.Fprintf(stderr, "govern: encode output: %v\n", err)
		return exitUsage
	}
	if *pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}
	if _, err := fmt.Fprintf(stdout, "%s\n", data); err != nil {
		fmt.Fprintf(stderr, "govern: write output: %v\n", err)
		return exitUsage
	}

	if *strict && out.Status() == governance.StatusQuarantine {
		return exitQuarantine
	}
	return exitOK
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
