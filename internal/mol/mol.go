// Package mol parses V2000 molfile connection tables. It is the
// independent check behind the repair pipeline: a repaired block is
// only trusted once this parser, which shares no code with the
// classifier, accepts it.
package mol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrTruncated  = errors.New("molfile truncated")
	ErrBadCounts  = errors.New("malformed counts line")
	ErrBadAtom    = errors.New("malformed atom line")
	ErrBadBond    = errors.New("malformed bond line")
	ErrMissingEnd = errors.New("missing M  END terminator")
	ErrBondIndex  = errors.New("bond references atom out of range")
)

// Atom is one atom record: coordinates and element symbol.
type Atom struct {
	X, Y, Z float64
	Symbol  string
}

// Bond is one bond record. From and To are 1-based atom indices.
type Bond struct {
	From, To int
	Type     int
}

// Molecule is a parsed connection table.
type Molecule struct {
	Title string
	Atoms []Atom
	Bonds []Bond
}

// Parse reads a molecule block: three header lines, a counts line,
// atom and bond records, and the M  END terminator. Data items after
// M  END are ignored. The counts line is authoritative; any mismatch
// between its fields and the records that follow is an error.
func Parse(text string) (*Molecule, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: %d lines", ErrTruncated, len(lines))
	}

	m := &Molecule{Title: strings.TrimRight(lines[0], " \t")}

	counts := lines[3]
	natoms, err := countsField(counts, 0)
	if err != nil {
		return nil, fmt.Errorf("line 4: %w: %v", ErrBadCounts, err)
	}
	nbonds, err := countsField(counts, 3)
	if err != nil {
		return nil, fmt.Errorf("line 4: %w: %v", ErrBadCounts, err)
	}

	pos := 4
	if len(lines) < pos+natoms+nbonds {
		return nil, fmt.Errorf("%w: counts declare %d atoms and %d bonds", ErrTruncated, natoms, nbonds)
	}

	for i := 0; i < natoms; i++ {
		a, err := parseAtom(lines[pos+i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", pos+i+1, ErrBadAtom, err)
		}
		m.Atoms = append(m.Atoms, a)
	}
	pos += natoms

	for i := 0; i < nbonds; i++ {
		b, err := parseBond(lines[pos+i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", pos+i+1, ErrBadBond, err)
		}
		if b.From < 1 || b.From > natoms || b.To < 1 || b.To > natoms {
			return nil, fmt.Errorf("line %d: %w: %d-%d of %d atoms", pos+i+1, ErrBondIndex, b.From, b.To, natoms)
		}
		m.Bonds = append(m.Bonds, b)
	}
	pos += nbonds

	for i := pos; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == "M  END" {
			return m, nil
		}
	}
	return nil, ErrMissingEnd
}

// Validate parses the block and reports only whether it is acceptable.
// It is the shape used by the repair pipeline's verification hook.
func Validate(text string) error {
	_, err := Parse(text)
	return err
}

// countsField reads the three-character integer field at the given
// offset of a counts line.
func countsField(line string, off int) (int, error) {
	if len(line) < off+3 {
		return 0, fmt.Errorf("line shorter than %d characters", off+3)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[off : off+3]))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative field %d", n)
	}
	return n, nil
}

// parseAtom reads one atom record. Full-width records use the fixed
// V2000 columns; archive writers that trim trailing blanks produce
// shorter lines, which are read as whitespace-separated fields.
func parseAtom(line string) (Atom, error) {
	if len(line) >= 34 {
		x, errX := strconv.ParseFloat(strings.TrimSpace(line[0:10]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(line[10:20]), 64)
		z, errZ := strconv.ParseFloat(strings.TrimSpace(line[20:30]), 64)
		sym := strings.TrimSpace(line[31:34])
		if errX == nil && errY == nil && errZ == nil && sym != "" {
			return Atom{X: x, Y: y, Z: z, Symbol: sym}, nil
		}
	}
	f := strings.Fields(line)
	if len(f) < 4 {
		return Atom{}, fmt.Errorf("%d fields", len(f))
	}
	var coords [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return Atom{}, fmt.Errorf("coordinate %q", f[i])
		}
		coords[i] = v
	}
	return Atom{X: coords[0], Y: coords[1], Z: coords[2], Symbol: f[3]}, nil
}

// parseBond reads one bond record: at least the two atom indices and
// the bond type.
func parseBond(line string) (Bond, error) {
	f := strings.Fields(line)
	if len(f) < 3 {
		return Bond{}, fmt.Errorf("%d fields", len(f))
	}
	var v [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(f[i])
		if err != nil {
			return Bond{}, fmt.Errorf("field %q", f[i])
		}
		v[i] = n
	}
	return Bond{From: v[0], To: v[1], Type: v[2]}, nil
}
