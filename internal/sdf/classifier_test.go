package sdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	atomLineC = "    0.7500    1.2990    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0"
	atomLineO = "   -0.7500    1.2990    0.0000 O   0  0  0  0  0  0  0  0  0  0  0  0"
	bondLine  = "  1  2  1  0"
	countsTwo = "  2  1  0  0  0  0  0  0  0  0999 V2000"
)

func block(lines ...string) Block {
	return Block{Lines: lines}
}

func TestParseCountsLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantOK    bool
		wantAtoms int
		wantBonds int
	}{
		{"full v2000", " 23 22  0  0  1  0  0  0  0  0999 V2000", true, 23, 22},
		{"no version tail", "  5  4", true, 5, 4},
		{"zero atoms", "  0  0  0  0  0  0  0  0  0  0999 V2000", true, 0, 0},
		{"three digit counts", "999999  0  0  0  0  0  0  0  0999 V2000", true, 999, 999},
		{"bond row collision", "  1  2  1  0", true, 1, 2},
		{"too short", "  5", false, 0, 0},
		{"alpha in atom field", "  a  4", false, 0, 0},
		{"negative atoms", " -1  4", false, 0, 0},
		{"decimal point", "1.0  4", false, 0, 0},
		{"blank fields", "      ", false, 0, 0},
		{"split digits", "1 1  4", false, 0, 0},
		{"non numeric third field", "  5  4 xx", false, 0, 0},
		{"atom coordinates", "    0.7500    1.2990    0.0000 C", false, 0, 0},
	}
	c := NewClassifier(DefaultMaxAtoms)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atoms, bonds, ok := c.parseCountsLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantAtoms, atoms)
				assert.Equal(t, tt.wantBonds, bonds)
			}
		})
	}
}

func TestParseCountsLineCeiling(t *testing.T) {
	c := NewClassifier(50)
	_, _, ok := c.parseCountsLine(" 51  2  0  0  0  0  0  0  0  0999 V2000")
	assert.False(t, ok, "atom field above the ceiling must not read as a counts line")

	atoms, bonds, ok := c.parseCountsLine(" 50  2  0  0  0  0  0  0  0  0999 V2000")
	require.True(t, ok)
	assert.Equal(t, 50, atoms)
	assert.Equal(t, 2, bonds)
}

func TestAtomLinePredicate(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"standard carbon", atomLineC, true},
		{"negative coords", atomLineO, true},
		{"minimal four fields", "  1.0 2.0 3.0 Cl", true},
		{"query atom", "  0.0 0.0 0.0 *", true},
		{"rgroup", "  0.0 0.0 0.0 R#", true},
		{"integer coords", "  1  0  0 C", true},
		{"three fields", "  1.0 2.0 3.0", false},
		{"numeric symbol", "  1.0 2.0 3.0 4", false},
		{"end marker", "M  END", false},
		{"bond row", bondLine, false},
		{"blank", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAtomLine(tt.line))
		})
	}
}

func TestBondLinePredicate(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"four fields", bondLine, true},
		{"seven fields", "  1  2  1  0  0  0  0", true},
		{"three fields", "  1  2  1", true},
		{"eight fields", "  1  2  1  0  0  0  0  0", false},
		{"alpha field", "  1  2  a  0", false},
		{"atom row", atomLineC, false},
		{"counts with version", countsTwo, false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBondLine(tt.line))
		})
	}
}

func TestMarkerPredicates(t *testing.T) {
	assert.True(t, isEndMarker("M  END"))
	assert.True(t, isEndMarker("M  END   "))
	assert.False(t, isEndMarker("M END"))
	assert.False(t, isEndMarker(" M  END"))
	assert.False(t, isEndMarker("M  ENDS"))

	assert.True(t, isDataHeader("> <NAME>"))
	assert.True(t, isDataHeader("  >  55  <COMMENT>"))
	assert.False(t, isDataHeader("NAME"))

	assert.True(t, isDelimiter("$$$$"))
	assert.True(t, isDelimiter("$$$$  "))
	assert.False(t, isDelimiter("$$$"))
	assert.False(t, isDelimiter("x$$$$"))
}

func TestClassifyWellFormed(t *testing.T) {
	b := block(
		"ethanol fragment",
		"  -ISIS-  04240817572D",
		"",
		countsTwo,
		atomLineC,
		atomLineO,
		bondLine,
		"M  END",
		"> <NAME>",
		"ethanol",
		"",
	)
	cl := NewClassifier(DefaultMaxAtoms).Classify(b)
	require.Equal(t, StatusWellFormed, cl.Status)
	assert.Equal(t, 3, cl.Structure.CountsIdx)
	assert.Equal(t, 7, cl.Structure.EndIdx)
	assert.Equal(t, 8, cl.Structure.DataIdx)
	assert.Equal(t, 2, cl.Structure.AtomCount)
	assert.Equal(t, 1, cl.Structure.BondCount)
	assert.Equal(t, "ethanol fragment", cl.Structure.Title)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		wantStatus Status
		wantAtoms  int
		wantBonds  int
	}{
		{
			name: "missing counts",
			lines: []string{
				"t", "p", "c",
				atomLineC, atomLineO, bondLine,
				"M  END",
				"> <ID>", "7", "",
			},
			wantStatus: StatusMissingCounts,
			wantAtoms:  2,
			wantBonds:  1,
		},
		{
			name: "missing counts with drifted comment",
			lines: []string{
				"t", "  -ISIS-  ", "",
				"C1=CC=CC=C1 comment",
				"  1.0000    0.0000    0.0000 C",
				"M  END",
				"> <ID>", "123", "",
			},
			wantStatus: StatusMissingCounts,
			wantAtoms:  1,
			wantBonds:  0,
		},
		{
			name: "missing end marker",
			lines: []string{
				"t", "p", "c",
				"  1  0  0  0  0  0  0  0  0  0999 V2000",
				atomLineC,
				"> <ID>", "123", "",
			},
			wantStatus: StatusMissingEnd,
			wantAtoms:  1,
			wantBonds:  0,
		},
		{
			name: "missing both",
			lines: []string{
				"t", "p", "c",
				atomLineC, atomLineO, bondLine,
				"> <ID>", "7", "",
			},
			wantStatus: StatusMissingBoth,
			wantAtoms:  2,
			wantBonds:  1,
		},
		{
			name:       "zero atom table with end marker",
			lines:      []string{"t", "p", "c", "M  END", "> <NAME>", "spectrum only", ""},
			wantStatus: StatusMissingCounts,
			wantAtoms:  0,
			wantBonds:  0,
		},
		{
			name:       "no table at all",
			lines:      []string{"t", "p", "c", "> <NAME>", "spectrum only", ""},
			wantStatus: StatusMissingBoth,
			wantAtoms:  0,
			wantBonds:  0,
		},
		{
			name: "declared counts with properties block",
			lines: []string{
				"t", "p", "c",
				countsTwo,
				atomLineC, atomLineO, bondLine,
				"M  CHG  1   1   1",
				"M  END",
			},
			wantStatus: StatusWellFormed,
			wantAtoms:  2,
			wantBonds:  1,
		},
		{
			name: "end marker after data header still counts",
			lines: []string{
				"t", "p", "c",
				countsTwo,
				atomLineC, atomLineO, bondLine,
				"> <ID>", "7", "",
				"M  END",
			},
			wantStatus: StatusWellFormed,
			wantAtoms:  2,
			wantBonds:  1,
		},
	}
	c := NewClassifier(DefaultMaxAtoms)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := c.Classify(block(tt.lines...))
			require.Equal(t, tt.wantStatus, cl.Status, "reason: %s", cl.Reason)
			assert.Equal(t, tt.wantAtoms, cl.Structure.AtomCount)
			assert.Equal(t, tt.wantBonds, cl.Structure.BondCount)
		})
	}
}

func TestClassifyUnrepairable(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"fewer than three header lines", []string{"t", "p"}},
		{"blank where table should start", []string{"t", "p", "c", "", "", "> <X>", "v", ""}},
		{"bond before atoms", []string{"t", "p", "c", bondLine, atomLineC, "M  END"}},
		{"junk inside atom block", []string{"t", "p", "c", atomLineC, "???", bondLine, "M  END"}},
		{"junk after bond block", []string{"t", "p", "c", atomLineC, bondLine, "M  CHG  1   1   1", "M  END"}},
		{"counts disagree with atoms", []string{"t", "p", "c", "  3  0  0  0  0  0  0  0  0  0999 V2000", atomLineC, "M  END"}},
		{"counts overrun block end", []string{"t", "p", "c", countsTwo, atomLineC}},
		{"counts understate the atom block", []string{"t", "p", "c", "  1  0  0  0  0  0  0  0  0  0999 V2000", atomLineC, atomLineO, "M  END"}},
		{"counts understate the bond block", []string{"t", "p", "c", countsTwo, atomLineC, atomLineO, bondLine, bondLine, "M  END"}},
		{"no table and no data items", []string{"t", "p", "c", "just a registry note"}},
	}
	c := NewClassifier(DefaultMaxAtoms)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := c.Classify(block(tt.lines...))
			require.Equal(t, StatusUnrepairable, cl.Status)
			assert.NotEmpty(t, cl.Reason)
		})
	}
}

func TestClassifyInferredCeiling(t *testing.T) {
	lines := []string{"t", "p", "c"}
	for i := 0; i < 3; i++ {
		lines = append(lines, atomLineC)
	}
	lines = append(lines, "M  END")

	cl := NewClassifier(2).Classify(block(lines...))
	require.Equal(t, StatusUnrepairable, cl.Status)
	assert.Contains(t, cl.Reason, "ceiling")

	cl = NewClassifier(3).Classify(block(lines...))
	require.Equal(t, StatusMissingCounts, cl.Status)
	assert.Equal(t, 3, cl.Structure.AtomCount)
}

func TestStatusRepairable(t *testing.T) {
	assert.False(t, StatusWellFormed.Repairable())
	assert.True(t, StatusMissingCounts.Repairable())
	assert.True(t, StatusMissingEnd.Repairable())
	assert.True(t, StatusMissingBoth.Repairable())
	assert.False(t, StatusUnrepairable.Repairable())
}
