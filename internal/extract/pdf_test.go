package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writePDF writes a single-font PDF with one page per entry of pages.
func writePDF(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	var objs []string
	n := len(pages)
	// 1 catalog, 2 pages, 3 font, then (page, content) pairs.
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	var kids []string
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestPDFTextJoinsPages(t *testing.T) {
	path := writePDF(t, t.TempDir(), "ddq.pdf", "Alpha Fund DDQ", "Phishing remediation")
	text, err := PDFText(path)
	if err != nil {
		t.Fatalf("PDFText: %v", err)
	}
	if !strings.Contains(text, "Alpha Fund DDQ") || !strings.Contains(text, "Phishing remediation") {
		t.Fatalf("unexpected text %q", text)
	}
	if strings.Index(text, "Alpha") > strings.Index(text, "Phishing") {
		t.Fatalf("pages out of order: %q", text)
	}
}

func TestPDFTextMissingFile(t *testing.T) {
	_, err := PDFText(filepath.Join(t.TempDir(), "nope.pdf"))
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestPDFTextEmpty(t *testing.T) {
	path := writePDF(t, t.TempDir(), "blank.pdf", "")
	_, err := PDFText(path)
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestPDFCorpusWarnsAndSkips(t *testing.T) {
	dir := t.TempDir()
	good := writePDF(t, dir, "soc2.pdf", "SOC 2 summary")
	garbage := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(garbage, []byte("not a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	var warnings []string
	corpus := PDFCorpus([]string{filepath.Join(dir, "missing.pdf"), garbage, good}, func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "not found") {
		t.Fatalf("unexpected first warning %q", warnings[0])
	}
	if !strings.Contains(corpus, "SOC 2 summary") || !strings.HasSuffix(corpus, "\n\n") {
		t.Fatalf("unexpected corpus %q", corpus)
	}
}
