// Package sdf implements structural validation and repair of SDF
// (Structure-Data File) molecule blocks. It knows the V2000 connection
// table grammar well enough to decide whether a block is well-formed,
// to synthesize a missing counts line or "M  END" marker, and to refuse
// blocks whose structure cannot be recovered deterministically. It does
// no chemistry: valence, bond orders, and molecule identity are out of
// scope.
package sdf

// Delimiter is the line terminating every molecule block in an SDF file.
const Delimiter = "$$$$"

// EndMarker is the literal line separating the connection table from the
// data-item section.
const EndMarker = "M  END"

// DefaultMaxAtoms is the largest atom count a counts line can declare.
// The V2000 atom-count field is three characters wide, so 999 is the
// format's own ceiling.
const DefaultMaxAtoms = 999

// Block is one raw molecule block: the ordered lines found between
// successive $$$$ delimiters, exclusive of the delimiter itself.
// Seq is the zero-based position of the block in its source file.
type Block struct {
	Seq   int
	Lines []string
}

// Text joins the block lines with \n. No trailing newline and no
// delimiter are added.
func (b Block) Text() string {
	n := 0
	for _, l := range b.Lines {
		n += len(l) + 1
	}
	if n == 0 {
		return ""
	}
	buf := make([]byte, 0, n-1)
	for i, l := range b.Lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l...)
	}
	return string(buf)
}

// Title returns the first header line, or "" for an empty block.
func (b Block) Title() string {
	if len(b.Lines) == 0 {
		return ""
	}
	return b.Lines[0]
}

// Clone returns a deep copy of the block. Repairs operate on clones so
// the original lines are never mutated.
func (b Block) Clone() Block {
	out := Block{Seq: b.Seq, Lines: make([]string, len(b.Lines))}
	copy(out.Lines, b.Lines)
	return out
}

// Status classifies the structural state of a block.
type Status string

const (
	StatusWellFormed    Status = "well_formed"    // counts line and end marker both present
	StatusMissingCounts Status = "missing_counts" // counts line absent, end marker present
	StatusMissingEnd    Status = "missing_end"    // counts line present, end marker absent
	StatusMissingBoth   Status = "missing_both"   // both structural lines absent
	StatusUnrepairable  Status = "unrepairable"   // structure cannot be recovered deterministically
)

// Repairable reports whether a block with this status can be fixed by
// inserting the missing structural line(s).
func (s Status) Repairable() bool {
	switch s {
	case StatusMissingCounts, StatusMissingEnd, StatusMissingBoth:
		return true
	}
	return false
}

// Structure is the parsed view of a block's line regions. Index fields
// are -1 when the region is absent.
type Structure struct {
	Title   string
	Program string
	Comment string

	// CountsIdx is the line index of the counts line.
	CountsIdx int
	// AtomStart is the index of the first atom line, or, for blocks
	// with no atoms, the index where the connection table ends.
	AtomStart int
	// AtomCount and BondCount are declared by the counts line when it
	// is present, otherwise inferred from line shapes.
	AtomCount int
	BondCount int
	// EndIdx is the line index of the M  END marker.
	EndIdx int
	// DataIdx is the index of the first data-item header ("> <TAG>").
	DataIdx int
}

// Classification is the classifier's verdict on a single block.
// Structure is only meaningful when Status is not StatusUnrepairable;
// Reason is only set when it is.
type Classification struct {
	Status    Status
	Reason    string
	Structure Structure
}
