package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/binschema/bbp"
	"github.com/binschema/bbp/internal/bitstream"
)

func main() {
	var (
		schemaFile = flag.String("schema", "", "binary-format schema file")
		inputFile  = flag.String("input", "", "file to parse against the schema")
		msb0       = flag.Bool("msb0", false, "consume bits most-significant-first instead of least-significant-first")
	)
	flag.Parse()

	if *schemaFile == "" || *inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -schema and -input are both required")
		os.Exit(1)
	}

	source, err := os.ReadFile(*schemaFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}

	schema, err := bbp.Compile(string(source), nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}

	f, err := os.Open(*inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}
	defer f.Close()

	var opts []bbp.ParseOption
	if *msb0 {
		opts = append(opts, bbp.WithBitOrder(bitstream.MSB0))
	}

	root, err := schema.Parse(f, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}

	root.DebugDump(os.Stdout)
}
