// Command distribution dumps Zipfian samples to standard output for
// offline inspection of the key-access distribution a workload would
// draw from.
//
// Usage:
//
//	distribution <num_elements> <exponent> <N>
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/jacklightChen/spectrum-sub001/internal/randsrc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

const usage = "usage: distribution <num_elements> <exponent> <N>"

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) and an output writer so it can be
// tested in isolation.
func run(args []string, out *os.File) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	numElements, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || numElements <= 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}
	exponent, err := strconv.ParseFloat(args[1], 64)
	if err != nil || exponent <= 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}
	n, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || n <= 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	z, err := randsrc.NewZipf(rand.New(rand.NewSource(1)), numElements, exponent)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	w := bufio.NewWriter(out)
	defer w.Flush()
	for i := int64(0); i < n; i++ {
		fmt.Fprintln(w, z.Sample())
	}
	return 0
}
