package sdf

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// maxBondField is the largest value the three-character bond-count
// field can hold.
const maxBondField = 999

// scanState names the region of a block the classifier is currently
// walking. The machine advances one line per step; stateCountsLine is
// transient and resolves to the first connection-table region before
// the next line is examined.
type scanState int

const (
	stateHeader scanState = iota
	stateCountsLine
	stateAtomBlock
	stateBondBlock
	statePropertiesOrEnd
	stateDataItems
)

// Classifier decides the structural status of molecule blocks. The
// zero value is not usable; construct with NewClassifier.
type Classifier struct {
	// maxAtoms is the largest first-field value accepted on a counts
	// line, and the largest atom count inference will produce. It
	// disambiguates counts lines from integer rows that merely share
	// their shape.
	maxAtoms int
}

// NewClassifier returns a classifier using the given atom ceiling.
// Values below 1 fall back to DefaultMaxAtoms.
func NewClassifier(maxAtoms int) *Classifier {
	if maxAtoms < 1 {
		maxAtoms = DefaultMaxAtoms
	}
	return &Classifier{maxAtoms: maxAtoms}
}

// MaxAtoms returns the configured atom ceiling.
func (c *Classifier) MaxAtoms() int {
	return c.maxAtoms
}

// Classify walks the block once, line by line, and reports whether the
// counts line and end marker are present, and how many atom and bond
// records the connection table holds. Counts are taken from the counts
// line when one exists and inferred from line shapes when it does not.
// Classification never mutates the block and never guesses: any block
// whose atom/bond boundary cannot be fixed deterministically comes back
// StatusUnrepairable with a reason.
func (c *Classifier) Classify(b Block) Classification {
	lines := b.Lines
	if len(lines) < 3 {
		return unrepairable("fewer than three header lines")
	}

	st := Structure{
		Title:     lines[0],
		Program:   lines[1],
		Comment:   lines[2],
		CountsIdx: -1,
		AtomStart: -1,
		EndIdx:    -1,
		DataIdx:   -1,
	}

	state := stateHeader
	declared := false
	remAtoms, remBonds := 0, 0
	nAtoms, nBonds := 0, 0

	for i := 3; i < len(lines); i++ {
		line := lines[i]

		// The counts line was consumed on the previous step; enter
		// whichever table region it declares non-empty.
		if state == stateCountsLine {
			switch {
			case remAtoms > 0:
				state = stateAtomBlock
			case remBonds > 0:
				state = stateBondBlock
			default:
				state = statePropertiesOrEnd
			}
		}

		switch state {
		case stateHeader:
			switch {
			case isBlank(line):
				// A blank line at the table position could be an
				// empty atom row or damage; either way the boundary
				// is lost.
				return unrepairable("ambiguous atom/bond boundary: blank line where the connection table should start")
			case isEndMarker(line):
				st.EndIdx = i
				st.AtomStart = i
				state = statePropertiesOrEnd
			default:
				if a, bn, ok := c.parseCountsLine(line); ok {
					st.CountsIdx = i
					st.AtomStart = i + 1
					declared = true
					remAtoms, remBonds = a, bn
					nAtoms, nBonds = a, bn
					state = stateCountsLine
					break
				}
				if isAtomLine(line) {
					st.AtomStart = i
					nAtoms = 1
					state = stateAtomBlock
					break
				}
				if isBondLine(line) {
					return unrepairable("bond record precedes the atom block")
				}
				if isDataHeader(line) {
					st.DataIdx = i
					st.AtomStart = i
					state = stateDataItems
					break
				}
				// Anything else is header spill (a drifted comment or
				// registry line); keep scanning for the table.
			}

		case stateAtomBlock:
			if declared {
				if !isAtomLine(line) {
					return unrepairable(fmt.Sprintf("counts line declares %d atoms but line %d is not an atom record", nAtoms, i+1))
				}
				remAtoms--
				if remAtoms == 0 {
					if remBonds > 0 {
						state = stateBondBlock
					} else {
						state = statePropertiesOrEnd
					}
				}
				break
			}
			switch {
			case isAtomLine(line):
				nAtoms++
			case isBondLine(line):
				nBonds = 1
				state = stateBondBlock
			case isEndMarker(line):
				st.EndIdx = i
				state = statePropertiesOrEnd
			case isDataHeader(line):
				st.DataIdx = i
				state = stateDataItems
			default:
				return unrepairable(fmt.Sprintf("ambiguous atom/bond boundary: line %d is neither an atom nor a bond record", i+1))
			}

		case stateBondBlock:
			if declared {
				if !isBondLine(line) {
					return unrepairable(fmt.Sprintf("counts line declares %d bonds but line %d is not a bond record", nBonds, i+1))
				}
				remBonds--
				if remBonds == 0 {
					state = statePropertiesOrEnd
				}
				break
			}
			switch {
			case isBondLine(line):
				nBonds++
			case isEndMarker(line):
				st.EndIdx = i
				state = statePropertiesOrEnd
			case isDataHeader(line):
				st.DataIdx = i
				state = stateDataItems
			default:
				return unrepairable(fmt.Sprintf("ambiguous atom/bond boundary: line %d ends the bond block without a terminator", i+1))
			}

		case statePropertiesOrEnd:
			switch {
			case st.EndIdx < 0 && isEndMarker(line):
				st.EndIdx = i
			case isDataHeader(line):
				st.DataIdx = i
				state = stateDataItems
			case declared && st.EndIdx < 0 && (isAtomLine(line) || isBondLine(line)):
				return unrepairable(fmt.Sprintf("counts line declares %d atoms and %d bonds but line %d extends the table", nAtoms, nBonds, i+1))
			}

		case stateDataItems:
			// Data items are free text; only note a late end marker so
			// presence detection stays a whole-block scan.
			if st.EndIdx < 0 && isEndMarker(line) {
				st.EndIdx = i
			}
		}
	}

	if declared && (remAtoms > 0 || remBonds > 0) {
		return unrepairable(fmt.Sprintf("counts line declares %d atoms and %d bonds but the block ends early", nAtoms, nBonds))
	}
	if st.AtomStart < 0 {
		return unrepairable("no connection table found")
	}
	if !declared {
		if nAtoms > c.maxAtoms {
			return unrepairable(fmt.Sprintf("inferred atom count %d exceeds the ceiling %d", nAtoms, c.maxAtoms))
		}
		if nBonds > maxBondField {
			return unrepairable(fmt.Sprintf("inferred bond count %d exceeds the field limit %d", nBonds, maxBondField))
		}
	}

	st.AtomCount = nAtoms
	st.BondCount = nBonds

	status := StatusWellFormed
	switch {
	case st.CountsIdx < 0 && st.EndIdx < 0:
		status = StatusMissingBoth
	case st.CountsIdx < 0:
		status = StatusMissingCounts
	case st.EndIdx < 0:
		status = StatusMissingEnd
	}
	return Classification{Status: status, Structure: st}
}

func unrepairable(reason string) Classification {
	return Classification{Status: StatusUnrepairable, Reason: reason}
}

// parseCountsLine matches the fixed-width V2000 counts grammar: two
// right-aligned three-character integer fields (atoms, then bonds),
// optionally followed by further numeric fields and a version token.
// The atom field must not exceed the ceiling; that is what keeps a row
// of small integers from being mistaken for a counts line in most
// blocks. A short all-integer bond row can still match, which is why
// only the header state ever asks.
func (c *Classifier) parseCountsLine(line string) (atoms, bonds int, ok bool) {
	if len(line) < 6 {
		return 0, 0, false
	}
	atoms, ok = fixedField(line[0:3])
	if !ok || atoms > c.maxAtoms {
		return 0, 0, false
	}
	bonds, ok = fixedField(line[3:6])
	if !ok || bonds > maxBondField {
		return 0, 0, false
	}
	if len(line) >= 9 {
		if _, ok := fixedField(line[6:9]); !ok {
			return 0, 0, false
		}
	}
	return atoms, bonds, true
}

// fixedField parses one three-character counts field: optional leading
// spaces, then digits. Signs, decimal points, and embedded spaces all
// disqualify it.
func fixedField(f string) (int, bool) {
	t := strings.TrimLeft(f, " ")
	if t == "" || strings.ContainsAny(t, " .+-") {
		return 0, false
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// isAtomLine reports whether line has the shape of a V2000 atom record:
// three coordinates followed by an element symbol. Field counts beyond
// the symbol vary by writer and are not checked.
func isAtomLine(line string) bool {
	f := strings.Fields(line)
	if len(f) < 4 {
		return false
	}
	for i := 0; i < 3; i++ {
		if _, err := strconv.ParseFloat(f[i], 64); err != nil {
			return false
		}
	}
	return isElementToken(f[3])
}

// isElementToken accepts element symbols plus the query and R-group
// placeholders seen in real files (*, R#).
func isElementToken(tok string) bool {
	if tok == "" {
		return false
	}
	r := rune(tok[0])
	return unicode.IsLetter(r) || r == '*'
}

// isBondLine reports whether line has the shape of a V2000 bond record:
// three to seven integer fields and nothing else. An element symbol in
// the fourth position makes a line an atom record instead, so the two
// shapes never overlap.
func isBondLine(line string) bool {
	f := strings.Fields(line)
	if len(f) < 3 || len(f) > 7 {
		return false
	}
	for _, tok := range f {
		if _, err := strconv.Atoi(tok); err != nil {
			return false
		}
	}
	return true
}

// isEndMarker reports whether line is the literal M  END terminator.
func isEndMarker(line string) bool {
	return strings.TrimRight(line, " \t") == EndMarker
}

// isDataHeader reports whether line opens a data item, e.g. "> <TAG>".
func isDataHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ">")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
