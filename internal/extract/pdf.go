// Package extract turns demo source files (PDF documents and SQLite tables)
// into plain text.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrSourceNotFound = errors.New("extract: source not found")
	ErrNoText         = errors.New("extract: no text extracted")
)

// WarnFunc receives recoverable problems from the lenient helpers.
type WarnFunc func(format string, args ...any)

func (w WarnFunc) warn(format string, args ...any) {
	if w != nil {
		w(format, args...)
	}
}

// PDFText returns the text of every page joined by newlines, trimmed.
func PDFText(path string) (string, error) {
	pages, err := pdfPages(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return "", fmt.Errorf("%w from %s", ErrNoText, path)
	}
	return text, nil
}

// PDFCorpus concatenates the readable PDFs, each followed by a blank line.
// Missing or unreadable files are reported through warn and skipped.
func PDFCorpus(paths []string, warn WarnFunc) string {
	var b strings.Builder
	for _, path := range paths {
		pages, err := pdfPages(path)
		if errors.Is(err, ErrSourceNotFound) {
			warn.warn("PDF file not found - %s", path)
			continue
		}
		if err != nil {
			warn.warn("error reading %s: %v", path, err)
			continue
		}
		for _, p := range pages {
			b.WriteString(p)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func pdfPages(path string) (pages []string, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: malformed pdf %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract: page %d of %s: %w", i, path, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
