package sdf

import (
	"errors"
	"fmt"
)

// ErrUnrepairable is returned when a block's structure cannot be
// recovered without guessing.
var ErrUnrepairable = errors.New("block is unrepairable")

// Repairer synthesizes the structural lines a block is missing. It
// builds on the classifier: every repair is derived from a fresh
// classification of the input block and checked by reclassifying the
// result, so a repair either round-trips to well-formed or is refused.
type Repairer struct {
	classifier *Classifier
}

// NewRepairer returns a repairer that classifies with the given atom
// ceiling.
func NewRepairer(maxAtoms int) *Repairer {
	return &Repairer{classifier: NewClassifier(maxAtoms)}
}

// Result is the outcome of repairing a single block.
type Result struct {
	// Block is the repaired (or already well-formed) block. It is a
	// copy; the input block is never mutated.
	Block Block
	// Status is the classification of the input block, i.e. which
	// repair was applied. StatusWellFormed means no lines were added.
	Status Status
	// Atoms and Bonds are the final connection-table counts.
	Atoms int
	Bonds int
}

// Repair classifies the block and inserts whichever structural lines
// are missing. Well-formed blocks pass through unchanged. Unrepairable
// blocks return ErrUnrepairable with the classifier's reason attached.
// Repair is idempotent: feeding a repaired block back in returns it
// unchanged with StatusWellFormed.
func (r *Repairer) Repair(b Block) (Result, error) {
	cl := r.classifier.Classify(b)
	if cl.Status == StatusUnrepairable {
		return Result{Status: StatusUnrepairable}, fmt.Errorf("%w: %s", ErrUnrepairable, cl.Reason)
	}

	st := cl.Structure
	out := b.Clone()
	res := Result{Status: cl.Status, Atoms: st.AtomCount, Bonds: st.BondCount}

	if cl.Status == StatusWellFormed {
		res.Block = out
		return res, nil
	}

	// Insert the counts line first; the end-marker position is then
	// computed in post-insertion coordinates.
	tableStart := st.CountsIdx + 1
	if st.CountsIdx < 0 {
		out.Lines = insertLine(out.Lines, st.AtomStart, FormatCountsLine(st.AtomCount, st.BondCount))
		tableStart = st.AtomStart + 1
	}
	if st.EndIdx < 0 {
		out.Lines = insertLine(out.Lines, tableStart+st.AtomCount+st.BondCount, EndMarker)
	}

	// A repair that does not reclassify as well-formed with the same
	// counts is no repair at all.
	check := r.classifier.Classify(out)
	if check.Status != StatusWellFormed ||
		check.Structure.AtomCount != st.AtomCount ||
		check.Structure.BondCount != st.BondCount {
		return Result{Status: StatusUnrepairable}, fmt.Errorf("%w: inserted lines did not produce a well-formed block", ErrUnrepairable)
	}

	res.Block = out
	return res, nil
}

// FormatCountsLine renders a V2000 counts line for the given atom and
// bond counts. All remaining fixed-width fields are zero.
func FormatCountsLine(atoms, bonds int) string {
	return fmt.Sprintf("%3d%3d  0  0  0  0  0  0  0  0999 V2000", atoms, bonds)
}

// insertLine returns lines with s inserted at index i, shifting the
// tail right. An i at or past the end appends.
func insertLine(lines []string, i int, s string) []string {
	if i >= len(lines) {
		return append(lines, s)
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:i]...)
	out = append(out, s)
	out = append(out, lines[i:]...)
	return out
}
