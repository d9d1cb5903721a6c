package deckimport

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/duedeck/internal/parser"
)

// readDir parses every .md file below dir. A file that fails to parse is
// logged and skipped.
func (im *Importer) readDir(dir string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileEntries, err := readMarkdown(path)
		if err != nil {
			im.logger.Warn("Skipping unreadable deck file", "path", path, "error", err)
			return nil
		}
		entries = append(entries, fileEntries...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", dir, err)
	}
	return entries, nil
}

// readMarkdown folds a card's context onto its back after a blank line.
func readMarkdown(path string) ([]Entry, error) {
	parsed, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	entries := make([]Entry, 0, len(parsed))
	for _, p := range parsed {
		back := p.Back
		if p.Context != "" {
			back += "\n\n" + p.Context
		}
		entries = append(entries, Entry{Front: p.Front, Back: back})
	}
	return entries, nil
}

func readXLSX(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return entriesFromRows(rows), nil
}

func readCSV(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return entriesFromRows(rows), nil
}

// entriesFromRows takes column A as the front and column B as the back. A
// first row whose A cell reads "front" is a header. Rows missing either side
// are skipped.
func entriesFromRows(rows [][]string) []Entry {
	var entries []Entry
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		front, back := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if i == 0 && strings.EqualFold(front, "front") {
			continue
		}
		if front == "" || back == "" {
			continue
		}
		entries = append(entries, Entry{Front: front, Back: back})
	}
	return entries
}
