package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/locus/internal/codec"
	"github.com/pithecene-io/locus/locus"
)

// -----------------------------------------------------------------------------
// stat
// -----------------------------------------------------------------------------

// statRecord is one line of stat output.
type statRecord struct {
	Location string     `json:"location"`
	Scheme   string     `json:"scheme"`
	Exists   bool       `json:"exists"`
	IsDir    bool       `json:"is_dir"`
	IsHidden bool       `json:"is_hidden"`
	Readable bool       `json:"readable"`
	Writable bool       `json:"writable"`
	Length   int64      `json:"length,omitempty"`
	ModTime  *time.Time `json:"mod_time,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func runStat(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "stat", "<location>...")
	concurrency := fs.Int("j", 8, "Number of locations probed concurrently")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 || *concurrency < 1 {
		fs.Usage()
		return errUsage
	}

	records := make([]statRecord, fs.NArg())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i, path := range fs.Args() {
		g.Go(func() error {
			records[i] = probe(gctx, e, path)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := codec.NewWriter(e.stdout)
	failed := 0
	for _, rec := range records {
		if rec.Error != "" {
			failed++
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d locations failed", failed, len(records))
	}
	return nil
}

// probe collects metadata for path. Failures are reported in the record.
func probe(ctx context.Context, e *env, path string) statRecord {
	rec := statRecord{Location: path}
	loc, err := e.location(path)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Location = loc.AbsolutePath()
	rec.Scheme = string(loc.Scheme())
	rec.IsHidden = loc.IsHidden()

	fail := func(err error) statRecord {
		rec.Error = err.Error()
		e.log.WithResource(rec.Location).Debug("probe failed", "error", err)
		return rec
	}

	if rec.Exists, err = loc.Exists(ctx); err != nil {
		return fail(err)
	}
	if rec.IsDir, err = loc.IsDirectory(ctx); err != nil {
		return fail(err)
	}
	if rec.Readable, err = loc.CanRead(ctx); err != nil {
		return fail(err)
	}
	if rec.Writable, err = loc.CanWrite(ctx); err != nil {
		return fail(err)
	}
	if !rec.Exists || rec.IsDir {
		return rec
	}
	if rec.Length, err = loc.Length(ctx); err != nil {
		return fail(err)
	}
	mt, err := loc.LastModified(ctx)
	if err != nil {
		return fail(err)
	}
	if !mt.IsZero() {
		rec.ModTime = &mt
	}
	return rec
}

// -----------------------------------------------------------------------------
// ls
// -----------------------------------------------------------------------------

func runList(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "ls", "<directory>")
	all := fs.Bool("a", false, "Include hidden entries")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	loc, err := e.location(fs.Arg(0))
	if err != nil {
		return err
	}
	names, err := loc.List(ctx, !*all)
	if err != nil {
		return err
	}
	if names == nil {
		return fmt.Errorf("%s: not a listable directory", loc)
	}

	w := bufio.NewWriter(e.stdout)
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return w.Flush()
}

// -----------------------------------------------------------------------------
// read
// -----------------------------------------------------------------------------

func runRead(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "read", "<location>")
	offset := fs.Int64("offset", 0, "Byte offset to start reading at")
	length := fs.Int64("length", -1, "Number of bytes to read (-1 reads to the end)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 || *offset < 0 {
		fs.Usage()
		return errUsage
	}

	loc, err := e.location(fs.Arg(0))
	if err != nil {
		return err
	}
	h, err := loc.Open(ctx, locus.ModeRead)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	if _, err := h.Seek(*offset, io.SeekStart); err != nil {
		return err
	}
	var src io.Reader = h
	if *length >= 0 {
		src = io.LimitReader(h, *length)
	}
	_, err = io.Copy(e.stdout, src)
	return err
}

// -----------------------------------------------------------------------------
// cat
// -----------------------------------------------------------------------------

func runCat(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "cat", "<location>...")
	raw := fs.Bool("raw", false, "Do not decompress")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	for _, path := range fs.Args() {
		if err := catOne(ctx, e, path, *raw); err != nil {
			return err
		}
	}
	return nil
}

func catOne(ctx context.Context, e *env, path string, raw bool) error {
	loc, err := e.location(path)
	if err != nil {
		return err
	}

	var h locus.Handle
	if raw {
		h, err = loc.Open(ctx, locus.ModeRead)
	} else {
		h, err = loc.OpenDecompressed(ctx)
	}
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	_, err = io.Copy(e.stdout, h)
	return err
}
