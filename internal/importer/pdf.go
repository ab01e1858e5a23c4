package importer

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ParsePDFExport extracts the plain text of a PDF journal export and
// splits it into dated entries.
func ParsePDFExport(path string) ([]ParsedEntry, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf export: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("reading pdf text: %w", err)
	}

	entries := splitDatedText(buf.String())
	if len(entries) == 0 {
		return nil, fmt.Errorf("no dated entries found in pdf export")
	}
	return entries, nil
}

// dateLine matches a line that is nothing but an entry date, e.g.
// "March 11, 2026" or "2026-03-11".
var dateLine = regexp.MustCompile(`^\s*((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}|\d{4}-\d{2}-\d{2})\s*$`)

// splitDatedText treats each date-only line as the start of a new
// entry and collects the following text into its body. Text before
// the first date line is dropped.
func splitDatedText(text string) []ParsedEntry {
	var entries []ParsedEntry
	var current *ParsedEntry
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content != "" {
			current.Content = content
			entries = append(entries, *current)
		}
		current = nil
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if m := dateLine.FindStringSubmatch(line); m != nil {
			if d, err := parseDate(m[1]); err == nil {
				flush()
				current = &ParsedEntry{Date: d}
				continue
			}
		}
		if current != nil {
			body = append(body, strings.TrimSpace(line))
		}
	}
	flush()

	return entries
}
