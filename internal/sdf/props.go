package sdf

import "strings"

// Tags used by the mass-spectral archives this tool was written for.
// Tag matching is case-sensitive throughout; archives are consistent
// about casing even when they are sloppy about structure.
const (
	TagName      = "NAME"
	TagComment   = "COMMENT"
	TagInChI     = "INCHI"
	TagInChIKey  = "INCHIKEY"
	TagExactMass = "EXACT MASS"
)

// DefaultRequiredTags is the completeness set checked when no explicit
// tag list is configured: a record missing any of these is flagged.
var DefaultRequiredTags = []string{
	"MASS SPECTRAL PEAKS",
	TagInChIKey,
	TagInChI,
	TagName,
	TagExactMass,
}

// DataItem is one "> <TAG>" entry and its value lines (the lines up to
// the blank terminator, exclusive).
type DataItem struct {
	Tag   string
	Lines []string
}

// Value returns the item's lines joined with \n.
func (d DataItem) Value() string {
	return strings.Join(d.Lines, "\n")
}

// DataItems parses the block's data-item section in order. Headers
// without an angle-bracketed tag (pure registry references) are
// skipped. Parsing is tolerant: it only looks at line shapes, so it
// works on malformed blocks too.
func DataItems(b Block) []DataItem {
	var items []DataItem
	for i := 0; i < len(b.Lines); i++ {
		tag, ok := parseDataTag(b.Lines[i])
		if !ok {
			continue
		}
		item := DataItem{Tag: tag}
		for j := i + 1; j < len(b.Lines); j++ {
			line := b.Lines[j]
			if isBlank(line) || isDataHeader(line) {
				i = j - 1
				break
			}
			item.Lines = append(item.Lines, line)
			i = j
		}
		items = append(items, item)
	}
	return items
}

// DataItemValue returns the value of the first data item with the given
// tag, and whether one exists.
func DataItemValue(b Block, tag string) (string, bool) {
	for _, item := range DataItems(b) {
		if item.Tag == tag {
			return item.Value(), true
		}
	}
	return "", false
}

// HasDataItem reports whether the block carries a data item with the
// given tag.
func HasDataItem(b Block, tag string) bool {
	_, ok := DataItemValue(b, tag)
	return ok
}

// MissingTags returns the subset of required that the block lacks, in
// the order given.
func MissingTags(b Block, required []string) []string {
	var missing []string
	for _, tag := range required {
		if !HasDataItem(b, tag) {
			missing = append(missing, tag)
		}
	}
	return missing
}

// InChIFromComment digs an InChI string out of the block's COMMENT data
// item. Mass-spectral archives bury the identifier there as one line of
// free text; the first line starting with "InChI=" wins. Returns ""
// when the block has no COMMENT item or none of its lines is an InChI.
func InChIFromComment(b Block) string {
	for _, item := range DataItems(b) {
		if item.Tag != TagComment {
			continue
		}
		for _, line := range item.Lines {
			t := strings.TrimSpace(line)
			if strings.HasPrefix(t, "InChI=") {
				return t
			}
		}
	}
	return ""
}

// AppendDataItem returns a copy of the block with a new data item added
// at the end. If the block's last line leaves the previous item
// unterminated, a blank terminator is added first so the existing item
// is not corrupted.
func AppendDataItem(b Block, tag string, values ...string) Block {
	out := b.Clone()
	if n := len(out.Lines); n > 0 {
		last := out.Lines[n-1]
		if !isBlank(last) && !isEndMarker(last) {
			out.Lines = append(out.Lines, "")
		}
	}
	out.Lines = append(out.Lines, "> <"+tag+">")
	out.Lines = append(out.Lines, values...)
	out.Lines = append(out.Lines, "")
	return out
}

// parseDataTag extracts the tag from a data-item header line, e.g.
// "> <NAME>" or ">  55  <NAME>" both yield NAME.
func parseDataTag(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, ">") {
		return "", false
	}
	open := strings.Index(t, "<")
	if open < 0 {
		return "", false
	}
	end := strings.Index(t[open:], ">")
	if end < 0 {
		return "", false
	}
	return t[open+1 : open+end], true
}
