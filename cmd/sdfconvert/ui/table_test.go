package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	table := NewTable("Recent Runs", "RUN", "TOTAL")
	table.AddRow("abc123", "42")

	styles := DefaultStyles()
	view := table.View(styles)

	if !strings.Contains(view, "Recent Runs") {
		t.Error("view missing title")
	}
	if !strings.Contains(view, "abc123") {
		t.Error("view missing cell content")
	}
	if !strings.Contains(view, "TOTAL") {
		t.Error("view missing header")
	}
}

func TestTableEmpty(t *testing.T) {
	table := NewTable("Empty", "A", "B")
	if view := table.View(DefaultStyles()); view != "" {
		t.Errorf("expected empty view for table without rows, got %q", view)
	}
}
