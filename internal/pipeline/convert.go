package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhongsheng-chen/SDF-Converter/internal/config"
	"github.com/zhongsheng-chen/SDF-Converter/internal/mol"
)

// ErrOutputClobbersInput is returned when the derived output path would
// overwrite the input file.
var ErrOutputClobbersInput = errors.New("output path equals input path")

// DefaultOutputDirName is the directory created beside the input file
// when no output directory is configured.
const DefaultOutputDirName = "converted"

// Converter converts SDF files on disk. It owns path derivation and
// file lifecycle; the block-level work is delegated to a Pipeline.
type Converter struct {
	cfg      *config.Config
	logger   *zap.Logger
	verify   ParseFunc
	observer func(Outcome)
}

// NewConverter builds a converter from configuration. When
// cfg.Repair.Verify is set, repaired blocks are checked with the
// molfile parser before being written.
func NewConverter(cfg *config.Config, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Converter{cfg: cfg, logger: logger}
	if cfg.Repair.Verify {
		c.verify = mol.Validate
	}
	return c
}

// SetVerify replaces the verification hook. A nil fn disables
// verification regardless of configuration.
func (c *Converter) SetVerify(fn ParseFunc) {
	c.verify = fn
}

// SetObserver registers a callback that sees every block outcome in
// order, e.g. for cataloging.
func (c *Converter) SetObserver(fn func(Outcome)) {
	c.observer = fn
}

// OutputPath returns where the converted copy of inputPath will land:
// the configured output directory, or a "converted" directory beside
// the input, keeping the input's base name.
func (c *Converter) OutputPath(inputPath string) string {
	dir := c.cfg.Output.Dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(inputPath), DefaultOutputDirName)
	}
	return filepath.Join(dir, filepath.Base(inputPath))
}

// FailedPath returns where rejected blocks for inputPath are collected:
// the configured failed_file, or "<name>_failed.sdf" beside the
// converted output.
func (c *Converter) FailedPath(inputPath string) string {
	if c.cfg.Output.FailedFile != "" {
		return c.cfg.Output.FailedFile
	}
	out := c.OutputPath(inputPath)
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_failed" + ext
}

// Convert repairs one file. The output directory is created on demand;
// the failures file is only created if a block actually fails and
// write_failed is enabled. The input file is never modified.
func (c *Converter) Convert(ctx context.Context, inputPath string) (Summary, error) {
	outPath := c.OutputPath(inputPath)

	inAbs, err := filepath.Abs(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve input path: %w", err)
	}
	outAbs, err := filepath.Abs(outPath)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve output path: %w", err)
	}
	if inAbs == outAbs {
		return Summary{}, fmt.Errorf("%w: %s", ErrOutputClobbersInput, inputPath)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return Summary{}, fmt.Errorf("create output directory: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return Summary{}, fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	var failed *lazyFile
	var failedW io.Writer
	if c.cfg.Output.WriteFailed {
		failed = &lazyFile{path: c.FailedPath(inputPath)}
		failedW = failed
		defer failed.Close()
	}

	pipe := New(Options{
		MaxAtoms:         c.cfg.Repair.MaxAtoms,
		Workers:          c.cfg.Repair.Workers,
		Verify:           c.verify,
		VerifyWellFormed: c.cfg.Repair.VerifyWellFormed,
		AnnotateInChI:    c.cfg.Annotate.InChI,
		RequiredTags:     c.cfg.Annotate.RequiredTags,
		Observer:         c.observer,
		Logger:           c.logger,
	})

	c.logger.Info("Converting file",
		zap.String("input", inputPath),
		zap.String("output", outPath),
		zap.Int("workers", c.cfg.Repair.Workers))

	sum, err := pipe.Process(ctx, in, out, failedW)
	sum.RunID = uuid.NewString()
	sum.Input = inputPath
	sum.Output = outPath
	if failed != nil && failed.Created() {
		sum.FailedOutput = failed.path
	}
	if err != nil {
		return sum, err
	}

	if err := out.Sync(); err != nil {
		return sum, fmt.Errorf("sync output: %w", err)
	}

	c.logger.Info("Conversion complete",
		zap.String("run_id", sum.RunID),
		zap.Int("total", sum.Total),
		zap.Int("well_formed", sum.WellFormed),
		zap.Int("repaired", sum.Repaired()),
		zap.Int("failed", sum.Failed),
		zap.Int("discarded", sum.Discarded),
		zap.Int("max_atoms_seen", sum.MaxAtomsSeen),
		zap.Duration("elapsed", sum.Duration))
	return sum, nil
}

// lazyFile defers file creation until the first write, so empty
// failure files never litter the output directory.
type lazyFile struct {
	path string
	f    *os.File
	err  error
}

func (l *lazyFile) Write(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.f == nil {
		f, err := os.Create(l.path)
		if err != nil {
			l.err = err
			return 0, err
		}
		l.f = f
	}
	return l.f.Write(p)
}

// Created reports whether the file was actually materialized.
func (l *lazyFile) Created() bool {
	return l.f != nil
}

func (l *lazyFile) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
