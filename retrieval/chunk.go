/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// chunk is one indexed passage of a corpus document
type chunk struct {
	ID      string
	Source  string
	Heading string
	Text    string
}

// splitMarkdown cuts a document into passages of at most size runes.
// A new passage starts at every Markdown heading; long sections are split on
// blank lines, and paragraphs that are still too long are cut hard.
func splitMarkdown(source, text string, size int) []chunk {
	var (
		chunks  []chunk
		heading string
		section []string
	)

	flush := func() {
		body := strings.TrimSpace(strings.Join(section, "\n"))
		section = section[:0]
		if body == "" {
			return
		}
		for _, piece := range splitSection(body, size) {
			chunks = append(chunks, chunk{
				ID:      fmt.Sprintf("%s#%d", source, len(chunks)+1),
				Source:  source,
				Heading: heading,
				Text:    piece,
			})
		}
	}

	inFence := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && isHeading(trimmed) {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		section = append(section, line)
	}
	flush()

	return chunks
}

// splitSection packs paragraphs into pieces of at most size runes
func splitSection(body string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(body) <= size {
		return []string{body}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	emit := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > size {
			emit()
			pieces = append(pieces, hardSplit(para, size)...)
			continue
		}
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+2+n > size {
			emit()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	emit()
	return pieces
}

// hardSplit cuts s into rune-safe pieces of at most size runes, preferring
// to break at whitespace
func hardSplit(s string, size int) []string {
	var pieces []string
	runes := []rune(s)
	for len(runes) > size {
		cut := size
		for i := size; i > size/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			pieces = append(pieces, piece)
		}
		runes = runes[cut:]
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		pieces = append(pieces, piece)
	}
	return pieces
}

func isHeading(line string) bool {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	return level >= 1 && level <= 6 && len(line) > level && line[level] == ' '
}
