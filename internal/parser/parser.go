// Package parser reads flashcards written as Q:/A:/C: blocks in markdown.
//
//	Q: What is the capital of France?
//	A: Paris
//	C: Geography
//	---
//
// A block runs until the next prefix, a "---" separator or the next Q:.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	separator     = "---"
)

// Entry is one parsed card. Context is optional.
type Entry struct {
	Front   string
	Back    string
	Context string
}

type field int

const (
	none field = iota
	front
	back
	context
)

// ParseFile reads a file from the given path and extracts all entries.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all entries. Entries without a
// front are dropped.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries []Entry
		current Entry
		block   []string
		reading = none
	)

	flushBlock := func() {
		content := strings.TrimRight(strings.Join(block, "\n"), "\n ")
		switch reading {
		case front:
			current.Front = content
		case back:
			current.Back = content
		case context:
			current.Context = content
		}
		block = nil
	}
	finishEntry := func() {
		flushBlock()
		if current.Front != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		reading = none
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishEntry()
			continue
		}

		next, rest, ok := prefixed(line)
		if !ok {
			if reading != none {
				block = append(block, line)
			}
			continue
		}

		if next == front && reading != none {
			finishEntry()
		} else {
			flushBlock()
		}
		reading = next
		block = append(block, rest)
	}
	finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// prefixed splits a line starting with one of the field prefixes. One space
// after the prefix is dropped.
func prefixed(line string) (field, string, bool) {
	for _, p := range []struct {
		prefix string
		f      field
	}{
		{frontPrefix, front},
		{backPrefix, back},
		{contextPrefix, context},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.f, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}
