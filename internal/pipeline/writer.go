package pipeline

import (
	"bufio"
	"io"
	"strings"

	"github.com/zhongsheng-chen/SDF-Converter/internal/sdf"
)

// blockWriter emits blocks back to SDF form: the block lines followed
// by the $$$$ delimiter, one newline per line.
type blockWriter struct {
	w *bufio.Writer
}

func newBlockWriter(w io.Writer) *blockWriter {
	return &blockWriter{w: bufio.NewWriter(w)}
}

func (bw *blockWriter) Write(b sdf.Block) error {
	for _, line := range b.Lines {
		if _, err := bw.w.WriteString(line); err != nil {
			return err
		}
		if err := bw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if _, err := bw.w.WriteString(sdf.Delimiter); err != nil {
		return err
	}
	return bw.w.WriteByte('\n')
}

func (bw *blockWriter) Flush() error {
	return bw.w.Flush()
}

// failureWriter collects unrepairable blocks. Each failed block is
// written verbatim with a FAILURE_REASON data item appended, so the
// side file remains a readable SDF stream that records why each block
// was rejected. A nil destination drops everything.
type failureWriter struct {
	bw *blockWriter
}

func newFailureWriter(w io.Writer) *failureWriter {
	if w == nil {
		return &failureWriter{}
	}
	return &failureWriter{bw: newBlockWriter(w)}
}

func (fw *failureWriter) Write(b sdf.Block, cause error) error {
	if fw.bw == nil {
		return nil
	}
	reason := "unknown"
	if cause != nil {
		// Reasons are one data-item value line; newlines would break
		// the record shape.
		reason = strings.ReplaceAll(cause.Error(), "\n", " ")
	}
	return fw.bw.Write(sdf.AppendDataItem(b, "FAILURE_REASON", reason))
}

func (fw *failureWriter) Flush() error {
	if fw.bw == nil {
		return nil
	}
	return fw.bw.Flush()
}
