package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"

	afscomp "github.com/afscomp/afscomp"
	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/pipeline"
	"github.com/afscomp/afscomp/internal/scan"
	"github.com/afscomp/afscomp/internal/volume"
)

func parseKind(s string) (codec.Kind, error) {
	switch s {
	case "zlib":
		return codec.Zlib, nil
	case "lzvn":
		return codec.Lzvn, nil
	case "lzfse":
		return codec.Lzfse, nil
	default:
		return 0, fmt.Errorf("unknown --compression %q (want zlib, lzvn, or lzfse)", s)
	}
}

func cmdCompress(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("compress", flag.ExitOnError)
	var (
		compression = fset.String("compression", "lzfse", "codec to compress with: zlib, lzvn, or lzfse")
		minRatio    = fset.Float64("min-ratio", 0.95, "skip a file as \"not compressible enough\" if its compressed size exceeds orig_size*min-ratio")
		verify      = fset.Bool("verify", false, "read back every written file and compare it against the original")
		keepGoing   = fset.Bool("keep-going", true, "continue past per-file errors instead of stopping the walk")
	)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("syntax: afscomp compress [options] <paths...>")
	}
	kind, err := parseKind(*compression)
	if err != nil {
		return err
	}

	vols := volume.New()
	afscomp.RegisterAtExit(vols.Close)
	progress := newCLIProgress(*verbose)

	opts := pipeline.NewOptions()
	opts.Kind = kind
	opts.MinCompressionRatio = *minRatio
	opts.Verify = *verify
	opts.KeepGoing = *keepGoing
	opts.CompressorWorkers = workerCount()
	opts.Volumes = vols
	opts.OpenResourceFork = openResourceFork
	opts.Progress = progress

	pl := pipeline.New(ctx, opts)
	tracker := newResetterTracker()

	predicate := func(path string, info fs.FileInfo) error {
		dev, err := volume.DeviceOf(info)
		if err != nil {
			return err
		}
		return scan.CheckCompressible(path, info, vols, hasXattr, dev)
	}

	visit := func(c scan.Candidate, cerr error) {
		resetter, rerr := tracker.forPath(c.Path)
		if rerr != nil {
			progress.Error(c.Path, rerr)
			return
		}
		if cerr != nil {
			var skipErr *scan.SkipError
			if skip, ok := cerr.(*scan.SkipError); ok {
				skipErr = skip
				progress.FileSkipped(c.Path, skipErr.Reason)
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
			Mode:     pipeline.ModeCompress,
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
