// Command afscomp transparently compresses and decompresses files
// using the decmpfs container format, and reports how much space a
// tree is saving.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	afscomp "github.com/afscomp/afscomp"
	"github.com/afscomp/afscomp/internal/trace"
)

var (
	chromeTracing = flag.String("chrome-tracing", "", "path to write a chrome://tracing JSON event file to")
	jobs          = flag.Int("jobs", 0, "number of compressor workers to run (default: available CPUs)")
	verbose       = flag.Bool("v", false, "verbose logging")
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	if *verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}

	if *chromeTracing != "" {
		f, err := os.Create(*chromeTracing)
		if err != nil {
			return err
		}
		trace.Sink(f)
	}

	verbs := map[string]cmd{
		"compress":   {cmdCompress},
		"decompress": {cmdDecompress},
		"info":       {cmdInfo},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "afscomp <command> [options] <paths...>\n")
		fmt.Fprintf(os.Stderr, "commands: compress, decompress, info\n")
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	if verb == "help" {
		if len(args) != 1 {
			fmt.Fprintf(os.Stderr, "afscomp [-flags] <command> [-flags] <paths...>\n")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintf(os.Stderr, "To get help on any command, use afscomp <command> -help.\n")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintf(os.Stderr, "\tcompress   - compress files in place using decmpfs\n")
			fmt.Fprintf(os.Stderr, "\tdecompress - reverse a prior compress run\n")
			fmt.Fprintf(os.Stderr, "\tinfo       - report compression savings for files or trees\n")
			os.Exit(2)
		}
		verb = args[0]
		args = []string{"-help"}
	}

	ctx, canc := afscomp.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: afscomp <command> [options] <paths...>\n")
		os.Exit(2)
	}
	if err := v.fn(ctx, args); err != nil {
		return fmt.Errorf("%s: %v", verb, err)
	}

	return afscomp.RunAtExit()
}

// exitCode terminates the process immediately with code, the way
// distri.go's help text does for a usage error — used here for the
// --keep-going=false hard-failure exit code, which must take effect
// even though funcmain's own error path always exits 1.
func exitCode(code int) {
	os.Exit(code)
}

// workerCount resolves --jobs against the host's available parallelism,
// the way the original CLI's --num-threads does.
func workerCount() int {
	if *jobs > 0 {
		return *jobs
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
