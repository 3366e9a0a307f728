package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"

	afscomp "github.com/afscomp/afscomp"
	"github.com/afscomp/afscomp/internal/pipeline"
	"github.com/afscomp/afscomp/internal/scan"
	"github.com/afscomp/afscomp/internal/volume"
)

func cmdDecompress(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("decompress", flag.ExitOnError)
	var (
		manual    = fset.Bool("manual", false, "decode each file's decmpfs container directly instead of letting the OS decompress it transparently on read")
		keepGoing = fset.Bool("keep-going", true, "continue past per-file errors instead of stopping the walk")
	)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("syntax: afscomp decompress [options] <paths...>")
	}

	mode := pipeline.ModeDecompressByReading
	if *manual {
		mode = pipeline.ModeDecompressManually
	}

	vols := volume.New()
	afscomp.RegisterAtExit(vols.Close)
	progress := newCLIProgress(*verbose)

	opts := pipeline.NewOptions()
	opts.KeepGoing = *keepGoing
	opts.CompressorWorkers = workerCount()
	opts.Volumes = vols
	opts.OpenResourceFork = openResourceFork
	opts.Progress = progress

	pl := pipeline.New(ctx, opts)
	tracker := newResetterTracker()

	predicate := func(path string, info fs.FileInfo) error {
		return scan.CheckDecompressible(info)
	}

	visit := func(c scan.Candidate, cerr error) {
		resetter, rerr := tracker.forPath(c.Path)
		if rerr != nil {
			progress.Error(c.Path, rerr)
			return
		}
		if cerr != nil {
			if skip, ok := cerr.(*scan.SkipError); ok {
				progress.FileSkipped(c.Path, skip.Reason)
			} else {
				progress.Error(c.Path, cerr)
			}
			resetter.Release()
			return
		}
		if pl.Cancelled() {
			resetter.Release()
			return
		}
		pl.Submit(pipeline.WorkItem{
			Path:     c.Path,
			Size:     uint64(c.Info.Size()),
			Mode:     mode,
			Resetter: resetter,
		})
	}

	walkErr := scan.Walk(fset.Args(), predicate, vols, visit)
	pl.Close()
	progress.Summary()

	if walkErr != nil {
		return walkErr
	}
	if pl.Failed() && !*keepGoing {
		exitCode(2)
	}
	return nil
}
