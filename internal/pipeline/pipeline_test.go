package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhongsheng-chen/SDF-Converter/internal/mol"
	"github.com/zhongsheng-chen/SDF-Converter/internal/sdf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testAtom = "    1.0000    0.0000    0.0000 C"
const testCounts = "  1  0  0  0  0  0  0  0  0  0999 V2000"

func joinBlock(lines ...string) string {
	return strings.Join(lines, "\n") + "\n$$$$\n"
}

func wellFormedBlock(title string) string {
	return joinBlock(title, "  -tool-", "", testCounts, testAtom, "M  END", "> <NAME>", title, "")
}

func missingCountsBlock(title string) string {
	return joinBlock(title, "  -tool-", "", testAtom, "M  END", "> <NAME>", title, "")
}

func missingEndBlock(title string) string {
	return joinBlock(title, "  -tool-", "", testCounts, testAtom, "> <NAME>", title, "")
}

func missingBothBlock(title string) string {
	return joinBlock(title, "  -tool-", "", testAtom, "> <NAME>", title, "")
}

func brokenBlock(title string) string {
	return joinBlock(title, "  -tool-", "", "", "", "> <NAME>", title, "")
}

// parseOutput splits converted output back into blocks and asserts
// every one of them is well-formed now.
func parseOutput(t *testing.T, text string) []sdf.Block {
	t.Helper()
	var blocks []sdf.Block
	s := sdf.NewSplitter(strings.NewReader(text))
	c := sdf.NewClassifier(sdf.DefaultMaxAtoms)
	for {
		b, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		cl := c.Classify(b)
		assert.Equal(t, sdf.StatusWellFormed, cl.Status, "output block %q: %s", b.Title(), cl.Reason)
		blocks = append(blocks, b)
	}
	assert.Zero(t, s.Discarded(), "converted output must not have trailing garbage")
	return blocks
}

func TestProcessMixedStream(t *testing.T) {
	in := wellFormedBlock("one") +
		missingCountsBlock("two") +
		missingEndBlock("three") +
		missingBothBlock("four") +
		brokenBlock("five")

	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Verify: mol.Validate})

	var out, failed bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &out, &failed)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 1, sum.WellFormed)
	assert.Equal(t, 1, sum.RepairedCounts)
	assert.Equal(t, 1, sum.RepairedEnd)
	assert.Equal(t, 1, sum.RepairedBoth)
	assert.Equal(t, 3, sum.Repaired())
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 4, sum.Converted())
	assert.Equal(t, 1, sum.MaxAtomsSeen)

	blocks := parseOutput(t, out.String())
	require.Len(t, blocks, 4)
	for i, want := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, want, blocks[i].Title())
	}

	// The failed block lands in the side file verbatim, reason attached.
	orig := strings.TrimSuffix(brokenBlock("five"), "$$$$\n")
	assert.True(t, strings.HasPrefix(failed.String(), orig))

	fblocks := []sdf.Block{}
	fs := sdf.NewSplitter(strings.NewReader(failed.String()))
	for {
		b, err := fs.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		fblocks = append(fblocks, b)
	}
	require.Len(t, fblocks, 1)
	assert.Equal(t, "five", fblocks[0].Title())
	reason, ok := sdf.DataItemValue(fblocks[0], "FAILURE_REASON")
	require.True(t, ok)
	assert.Contains(t, reason, "ambiguous")
}

func TestProcessParallelMatchesSequential(t *testing.T) {
	var in strings.Builder
	for i := 0; i < 60; i++ {
		title := fmt.Sprintf("mol-%03d", i)
		switch i % 5 {
		case 0:
			in.WriteString(wellFormedBlock(title))
		case 1:
			in.WriteString(missingCountsBlock(title))
		case 2:
			in.WriteString(missingEndBlock(title))
		case 3:
			in.WriteString(missingBothBlock(title))
		case 4:
			in.WriteString(brokenBlock(title))
		}
	}

	run := func(workers int) (string, string, Summary) {
		p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Workers: workers, Verify: mol.Validate})
		var out, failed bytes.Buffer
		sum, err := p.Process(context.Background(), strings.NewReader(in.String()), &out, &failed)
		require.NoError(t, err)
		return out.String(), failed.String(), sum
	}

	seqOut, seqFailed, seqSum := run(1)
	parOut, parFailed, parSum := run(8)

	assert.Equal(t, seqOut, parOut, "parallel output must be byte-identical to sequential")
	assert.Equal(t, seqFailed, parFailed)
	if diff := cmp.Diff(seqSum, parSum, cmpopts.IgnoreFields(Summary{}, "Duration")); diff != "" {
		t.Errorf("summary mismatch (-sequential +parallel):\n%s", diff)
	}
	assert.Equal(t, 48, seqSum.Converted())
	assert.Equal(t, 12, seqSum.Failed)
}

func TestProcessVerificationRejects(t *testing.T) {
	in := wellFormedBlock("good") + missingCountsBlock("bad")

	verify := func(text string) error {
		if strings.HasPrefix(text, "bad") {
			return fmt.Errorf("synthetic parser rejection")
		}
		return nil
	}
	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Verify: verify})

	var out, failed bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &out, &failed)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.WellFormed)

	// The failed copy keeps the original, unrepaired lines.
	fs := sdf.NewSplitter(strings.NewReader(failed.String()))
	fb, err := fs.Next()
	require.NoError(t, err)
	assert.Equal(t, "bad", fb.Title())
	cl := sdf.NewClassifier(sdf.DefaultMaxAtoms).Classify(fb)
	assert.Equal(t, sdf.StatusMissingCounts, cl.Status, "failure record must preserve the block verbatim")
	reason, ok := sdf.DataItemValue(fb, "FAILURE_REASON")
	require.True(t, ok)
	assert.Contains(t, reason, "verification rejected")
}

func TestProcessVerifyWellFormedOptIn(t *testing.T) {
	in := wellFormedBlock("good") + missingEndBlock("fixed")
	rejectAll := func(string) error { return fmt.Errorf("synthetic parser rejection") }

	// Default scope: only repaired blocks are verified, so the
	// untouched block still passes through.
	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Verify: rejectAll})
	var out, failed bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &out, &failed)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.WellFormed)
	assert.Equal(t, 1, sum.Failed)

	p = New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Verify: rejectAll, VerifyWellFormed: true})
	out.Reset()
	failed.Reset()
	sum, err = p.Process(context.Background(), strings.NewReader(in), &out, &failed)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.WellFormed)
	assert.Equal(t, 2, sum.Failed)
	assert.Empty(t, out.String())
}

func TestProcessOutputIsIdempotent(t *testing.T) {
	in := wellFormedBlock("one") +
		missingCountsBlock("two") +
		missingEndBlock("three") +
		missingBothBlock("four")

	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, Verify: mol.Validate})
	var first bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &first, nil)
	require.NoError(t, err)
	require.Equal(t, 4, sum.Converted())

	var second bytes.Buffer
	again, err := p.Process(context.Background(), strings.NewReader(first.String()), &second, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, again.Total)
	assert.Equal(t, 4, again.WellFormed)
	assert.Zero(t, again.Repaired())
	assert.Zero(t, again.Failed)
	assert.Equal(t, first.String(), second.String())
}

func TestProcessAnnotatesInChI(t *testing.T) {
	withComment := joinBlock(
		"commented", "  -tool-", "",
		testCounts, testAtom, "M  END",
		">  <COMMENT>",
		"InChI=1S/CH4/h1H4",
		"",
	)
	alreadyTagged := joinBlock(
		"tagged", "  -tool-", "",
		testCounts, testAtom, "M  END",
		"> <INCHI>",
		"InChI=1S/CH4/h1H4",
		"",
		">  <COMMENT>",
		"InChI=1S/C2H6/c1-2/h1-2H3",
		"",
	)

	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms, AnnotateInChI: true})
	var out bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(withComment+alreadyTagged), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Annotated)

	blocks := parseOutput(t, out.String())
	require.Len(t, blocks, 2)

	v, ok := sdf.DataItemValue(blocks[0], "INCHI")
	require.True(t, ok, "INCHI item must be added from the COMMENT field")
	assert.Equal(t, "InChI=1S/CH4/h1H4", v)

	v, ok = sdf.DataItemValue(blocks[1], "INCHI")
	require.True(t, ok)
	assert.Equal(t, "InChI=1S/CH4/h1H4", v, "existing INCHI item must not be replaced")
}

func TestProcessRequiredTags(t *testing.T) {
	p := New(Options{
		MaxAtoms:     sdf.DefaultMaxAtoms,
		RequiredTags: []string{"NAME", "EXACT MASS"},
	})
	in := wellFormedBlock("has-name") // carries NAME but not EXACT MASS

	var out bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Incomplete)
}

func TestProcessObserverSeesOrderedOutcomes(t *testing.T) {
	in := wellFormedBlock("a") + brokenBlock("b") + missingCountsBlock("c")

	var seqs []int
	var statuses []sdf.Status
	p := New(Options{
		MaxAtoms: sdf.DefaultMaxAtoms,
		Workers:  4,
		Observer: func(o Outcome) {
			seqs = append(seqs, o.Block.Seq)
			statuses = append(statuses, o.Status)
		},
	})

	var out bytes.Buffer
	_, err := p.Process(context.Background(), strings.NewReader(in), &out, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, seqs)
	assert.Equal(t, []sdf.Status{sdf.StatusWellFormed, sdf.StatusUnrepairable, sdf.StatusMissingCounts}, statuses)
}

func TestProcessCountsTrailingGarbage(t *testing.T) {
	in := wellFormedBlock("only") + "orphan line\nanother\n"

	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms})
	var out bytes.Buffer
	sum, err := p.Process(context.Background(), strings.NewReader(in), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 2, sum.Discarded)
}

func TestProcessCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{MaxAtoms: sdf.DefaultMaxAtoms})
	var out bytes.Buffer
	_, err := p.Process(ctx, strings.NewReader(wellFormedBlock("x")), &out, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
