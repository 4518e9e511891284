package network

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// DefaultWeight is assigned to rows that carry only source and target.
const DefaultWeight = 1.0

const maxWarnings = 20

// maxLineBytes bounds a single row; ranked edge lists never come close.
const maxLineBytes = 1 << 20

// ParseResult is the outcome of reading one network file.
type ParseResult struct {
	Edges    []models.Edge
	Skipped  int
	Warnings []string
}

// Parse reads an edge list. Each non-blank row is split on tabs when it
// contains one and on commas otherwise; rows with 2 columns get weight 1.0,
// rows with 3 columns use the third as weight. Any other row is skipped and
// counted. A recognised header ("Gene1", "source", ...) is dropped when it
// is the first non-blank row.
func Parse(r io.Reader) (*ParseResult, error) {
	res := &ParseResult{Edges: []models.Edge{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	seenRow := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !seenRow {
			seenRow = true
			if looksLikeHeader(line) {
				continue
			}
		}

		edge, reason := parseRow(line)
		if reason != "" {
			res.Skipped++
			if len(res.Warnings) < maxWarnings {
				res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %s", lineNo, reason))
			}
			continue
		}
		res.Edges = append(res.Edges, edge)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}
	return res, nil
}

// ParseFile opens path and parses it. Skipped rows are logged once per file.
func ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if res.Skipped > 0 {
		slog.Warn("skipped malformed network rows",
			"file", path,
			"skipped", res.Skipped,
			"first", res.Warnings[0],
		)
	}
	return res, nil
}

func parseRow(line string) (models.Edge, string) {
	fields, err := splitRow(line)
	if err != nil {
		return models.Edge{}, err.Error()
	}
	if len(fields) != 2 && len(fields) != 3 {
		return models.Edge{}, fmt.Sprintf("expected 2 or 3 columns, got %d", len(fields))
	}

	src := strings.TrimSpace(fields[0])
	tgt := strings.TrimSpace(fields[1])
	if src == "" || tgt == "" {
		return models.Edge{}, "empty source or target"
	}

	weight := DefaultWeight
	if len(fields) == 3 {
		raw := strings.TrimSpace(fields[2])
		if raw != "" {
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
				return models.Edge{}, fmt.Sprintf("invalid weight %q", raw)
			}
			weight = w
		}
	}
	return models.Edge{Source: src, Target: tgt, Weight: weight}, ""
}

func splitRow(line string) ([]string, error) {
	if strings.Contains(line, "\t") {
		return strings.Split(line, "\t"), nil
	}
	if !strings.Contains(line, ",") {
		return []string{line}, nil
	}
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("malformed row: %v", err)
	}
	return fields, nil
}

func looksLikeHeader(line string) bool {
	fields, err := splitRow(line)
	if err != nil || len(fields) < 2 || len(fields) > 3 {
		return false
	}
	return headerNames[strings.ToLower(strings.TrimSpace(fields[0]))] &&
		headerNames[strings.ToLower(strings.TrimSpace(fields[1]))]
}

var headerNames = map[string]bool{
	"source":    true,
	"target":    true,
	"gene1":     true,
	"gene2":     true,
	"regulator": true,
	"from":      true,
	"to":        true,
}
