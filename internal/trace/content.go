package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"proofdeps/internal/ir"
)

// EscapeContent quotes text for a line-content record, doubling embedded quotes.
func EscapeContent(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// UnescapeContent reverses EscapeContent. A field without surrounding quotes
// is returned unchanged.
func UnescapeContent(field string) (string, error) {
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		if strings.Contains(field, `"`) {
			return "", fmt.Errorf("%w: %w", ErrMalformedRecord, errBadQuote)
		}
		return field, nil
	}

	inner := field[1 : len(field)-1]
	var sb strings.Builder
	sb.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '"' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(inner) && inner[i+1] == '"' {
			sb.WriteByte('"')
			i++
			continue
		}
		return "", fmt.Errorf("%w: %w at offset %d", ErrMalformedRecord, errBadQuote, i+1)
	}
	return sb.String(), nil
}

// FormatLineContent renders one `lineNumber,"text"` record.
func FormatLineContent(c ir.LineContent) string {
	return strconv.Itoa(c.Line) + "," + EscapeContent(c.Text)
}

// ParseLineContent parses one `lineNumber,"text"` record.
func ParseLineContent(row string) (ir.LineContent, error) {
	numPart, rest, ok := strings.Cut(row, ",")
	if !ok {
		return ir.LineContent{}, fmt.Errorf("%w: missing separator", ErrMalformedRecord)
	}
	line, err := strconv.Atoi(strings.TrimSpace(numPart))
	if err != nil || line <= 0 {
		return ir.LineContent{}, fmt.Errorf("%w: bad line number %q", ErrMalformedRecord, numPart)
	}
	text, err := UnescapeContent(rest)
	if err != nil {
		return ir.LineContent{}, err
	}
	return ir.LineContent{Line: line, Text: text}, nil
}

// ReadLineContents parses a line-content file. A first row without a numeric
// line number is taken as a header.
func ReadLineContents(r io.Reader, logger *slog.Logger) ([]ir.LineContent, Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := newReport()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var out []ir.LineContent
	row := 0
	first := true
	for scanner.Scan() {
		row++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if first {
			first = false
			if isHeader(text) {
				continue
			}
		}
		c, err := ParseLineContent(text)
		if err != nil {
			reason := ReasonBadLine
			if errors.Is(err, errBadQuote) {
				reason = ReasonBadQuoting
			}
			logger.Debug("skipping line-content record", "row", row, "error", err)
			report.reject(reason)
			continue
		}
		out = append(out, c)
		report.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, report, fmt.Errorf("read line contents: %w", err)
	}
	return out, report, nil
}

// isHeader reports whether the first field of row is not a number.
func isHeader(row string) bool {
	numPart, _, _ := strings.Cut(row, ",")
	_, err := strconv.Atoi(strings.TrimSpace(numPart))
	return err != nil
}

// WriteLineContents writes one record per entry, in the given order.
func WriteLineContents(w io.Writer, contents []ir.LineContent) error {
	bw := bufio.NewWriter(w)
	for _, c := range contents {
		if _, err := bw.WriteString(FormatLineContent(c) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ContentsFromSource numbers the lines of a source file starting at 1.
func ContentsFromSource(r io.Reader) ([]ir.LineContent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var out []ir.LineContent
	for n := 1; scanner.Scan(); n++ {
		out = append(out, ir.LineContent{Line: n, Text: strings.TrimSuffix(scanner.Text(), "\r")})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return out, nil
}
