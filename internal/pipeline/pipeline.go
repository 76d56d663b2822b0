// Package pipeline drives SDF conversion: it splits an input stream
// into blocks, repairs each one, optionally verifies the repair with an
// independent parser, and writes the survivors back out in their
// original order. Unrepairable blocks are diverted to a failure sink
// instead of poisoning the run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhongsheng-chen/SDF-Converter/internal/sdf"
)

// ParseFunc checks a repaired block. A non-nil error marks the block
// failed even though its structure looked repairable.
type ParseFunc func(blockText string) error

// Options configures a Pipeline.
type Options struct {
	// MaxAtoms is the counts-line atom ceiling.
	MaxAtoms int

	// Workers is the number of blocks repaired concurrently. Values
	// below 2 select the sequential path. Output order is preserved
	// either way.
	Workers int

	// Verify, when non-nil, re-parses every repaired block. Blocks it
	// rejects are failed.
	Verify ParseFunc

	// VerifyWellFormed extends verification to blocks that needed no
	// repair. Off by default so untouched blocks always pass through.
	VerifyWellFormed bool

	// AnnotateInChI adds an INCHI data item to records that carry an
	// InChI in their COMMENT field but no INCHI item.
	AnnotateInChI bool

	// RequiredTags lists data items every record should carry. Records
	// missing any are counted and logged, not failed.
	RequiredTags []string

	// Observer, when non-nil, sees every outcome in block order.
	Observer func(Outcome)

	Logger *zap.Logger
}

// Outcome is the result of processing one block.
type Outcome struct {
	// Block is the repaired block for successful outcomes and the
	// original block for failed ones.
	Block sdf.Block

	// Status is the structural classification of the input block.
	Status sdf.Status

	// Atoms and Bonds are the connection-table counts, zero on failure.
	Atoms int
	Bonds int

	// Err is set when the block could not be repaired or failed
	// verification.
	Err error

	// Annotated reports whether an INCHI data item was added.
	Annotated bool

	// Missing lists required tags the record lacks.
	Missing []string
}

// Failed reports whether the block was diverted to the failure sink.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Summary aggregates one conversion run.
type Summary struct {
	RunID  string
	Input  string
	Output string

	// FailedOutput is the failures file path, set only when one was
	// actually written.
	FailedOutput string

	Total          int
	WellFormed     int
	RepairedCounts int
	RepairedEnd    int
	RepairedBoth   int
	Failed         int
	Discarded      int

	Annotated  int
	Incomplete int

	// MaxAtomsSeen is the largest atom count among converted blocks.
	MaxAtomsSeen int

	Duration time.Duration
}

// Repaired returns the number of blocks that needed any repair.
func (s Summary) Repaired() int {
	return s.RepairedCounts + s.RepairedEnd + s.RepairedBoth
}

// Converted returns the number of blocks written to the output.
func (s Summary) Converted() int {
	return s.Total - s.Failed
}

// Pipeline repairs SDF streams. Construct with New; a Pipeline is safe
// to reuse across runs but not across concurrent runs.
type Pipeline struct {
	opts     Options
	repairer *sdf.Repairer
	logger   *zap.Logger
}

// New returns a pipeline with the given options.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		opts:     opts,
		repairer: sdf.NewRepairer(opts.MaxAtoms),
		logger:   logger,
	}
}

// Process converts one stream. Repaired blocks go to out, failed blocks
// to failed (which may be nil to drop them). The returned error covers
// stream-level problems only; per-block failures are reported through
// the summary and the failure sink.
func (p *Pipeline) Process(ctx context.Context, in io.Reader, out, failed io.Writer) (Summary, error) {
	start := time.Now()
	sum := Summary{}

	splitter := sdf.NewSplitter(in)
	sink := newBlockWriter(out)
	failSink := newFailureWriter(failed)

	var err error
	if p.opts.Workers > 1 {
		err = p.runParallel(ctx, splitter, sink, failSink, &sum)
	} else {
		err = p.runSequential(ctx, splitter, sink, failSink, &sum)
	}
	if err != nil {
		return sum, err
	}
	if err := sink.Flush(); err != nil {
		return sum, fmt.Errorf("flush output: %w", err)
	}
	if err := failSink.Flush(); err != nil {
		return sum, fmt.Errorf("flush failure sink: %w", err)
	}

	sum.Discarded = splitter.Discarded()
	sum.Duration = time.Since(start)
	return sum, nil
}

func (p *Pipeline) runSequential(ctx context.Context, splitter *sdf.Splitter, sink *blockWriter, failSink *failureWriter, sum *Summary) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := splitter.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.emit(p.handle(b), sink, failSink, sum); err != nil {
			return err
		}
	}
}

// runParallel fans blocks out to a worker pool and reorders outcomes by
// sequence number before emitting, so parallel runs are byte-identical
// to sequential ones.
func (p *Pipeline) runParallel(ctx context.Context, splitter *sdf.Splitter, sink *blockWriter, failSink *failureWriter, sum *Summary) error {
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan sdf.Block, p.opts.Workers)
	results := make(chan Outcome, p.opts.Workers)

	g.Go(func() error {
		defer close(jobs)
		for {
			b, err := splitter.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var workers errgroup.Group
	for i := 0; i < p.opts.Workers; i++ {
		workers.Go(func() error {
			for b := range jobs {
				select {
				case results <- p.handle(b):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		_ = workers.Wait()
		close(results)
	}()

	var emitErr error
	pending := make(map[int]Outcome)
	next := 0
	for o := range results {
		if emitErr != nil {
			continue // drain
		}
		pending[o.Block.Seq] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := p.emit(ready, sink, failSink, sum); err != nil {
				emitErr = err
				break
			}
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if emitErr != nil {
		return emitErr
	}
	// Anything still pending means the reader stopped early; emit in
	// order for a clean partial output.
	if len(pending) > 0 {
		seqs := make([]int, 0, len(pending))
		for seq := range pending {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			if err := p.emit(pending[seq], sink, failSink, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

// handle runs the repair, verification, and annotation steps for one
// block. It never touches shared state, so workers may call it
// concurrently.
func (p *Pipeline) handle(b sdf.Block) Outcome {
	res, err := p.repairer.Repair(b)
	if err != nil {
		return Outcome{Block: b, Status: sdf.StatusUnrepairable, Err: err}
	}

	o := Outcome{Block: res.Block, Status: res.Status, Atoms: res.Atoms, Bonds: res.Bonds}

	if p.opts.Verify != nil && (o.Status != sdf.StatusWellFormed || p.opts.VerifyWellFormed) {
		if err := p.opts.Verify(o.Block.Text()); err != nil {
			o.Err = fmt.Errorf("verification rejected block: %w", err)
			o.Block = b
			return o
		}
	}

	if p.opts.AnnotateInChI && !sdf.HasDataItem(o.Block, sdf.TagInChI) {
		if inchi := sdf.InChIFromComment(o.Block); inchi != "" {
			o.Block = sdf.AppendDataItem(o.Block, sdf.TagInChI, inchi)
			o.Annotated = true
		}
	}

	if len(p.opts.RequiredTags) > 0 {
		o.Missing = sdf.MissingTags(o.Block, p.opts.RequiredTags)
	}
	return o
}

// emit writes one outcome to the proper sink and folds it into the
// summary. Outcomes arrive here in block order.
func (p *Pipeline) emit(o Outcome, sink *blockWriter, failSink *failureWriter, sum *Summary) error {
	sum.Total++

	if o.Failed() {
		sum.Failed++
		p.logger.Warn("Block failed",
			zap.Int("seq", o.Block.Seq),
			zap.String("title", o.Block.Title()),
			zap.Error(o.Err))
		if err := failSink.Write(o.Block, o.Err); err != nil {
			return fmt.Errorf("write failed block %d: %w", o.Block.Seq, err)
		}
		if p.opts.Observer != nil {
			p.opts.Observer(o)
		}
		return nil
	}

	switch o.Status {
	case sdf.StatusWellFormed:
		sum.WellFormed++
	case sdf.StatusMissingCounts:
		sum.RepairedCounts++
	case sdf.StatusMissingEnd:
		sum.RepairedEnd++
	case sdf.StatusMissingBoth:
		sum.RepairedBoth++
	}
	if o.Annotated {
		sum.Annotated++
	}
	if len(o.Missing) > 0 {
		sum.Incomplete++
		p.logger.Info("Record missing expected tags",
			zap.Int("seq", o.Block.Seq),
			zap.String("title", o.Block.Title()),
			zap.Strings("missing", o.Missing))
	}
	if o.Atoms > sum.MaxAtomsSeen {
		sum.MaxAtomsSeen = o.Atoms
	}

	if o.Status != sdf.StatusWellFormed {
		p.logger.Debug("Block repaired",
			zap.Int("seq", o.Block.Seq),
			zap.String("status", string(o.Status)),
			zap.Int("atoms", o.Atoms),
			zap.Int("bonds", o.Bonds))
	}

	if err := sink.Write(o.Block); err != nil {
		return fmt.Errorf("write block %d: %w", o.Block.Seq, err)
	}
	if p.opts.Observer != nil {
		p.opts.Observer(o)
	}
	return nil
}
