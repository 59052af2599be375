package trace

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"proofdeps/internal/ir"
)

var (
	// "(main.rs @ line 12)" may trail other text in the field.
	wrappedPosition = regexp.MustCompile(`\(([^()]*?)\s*@\s*line\s+(\d+)\s*\)\s*$`)
	barePosition    = regexp.MustCompile(`^\s*(.+?)\s*@\s*line\s+(\d+)\s*$`)
)

// ParsePosition extracts (file, line) from a trailing position descriptor.
func ParsePosition(desc string) (ir.Position, error) {
	m := wrappedPosition.FindStringSubmatch(desc)
	if m == nil {
		m = barePosition.FindStringSubmatch(desc)
	}
	if m == nil {
		return ir.Position{}, fmt.Errorf("%w: %q", ErrBadPosition, desc)
	}

	file := strings.TrimSpace(m[1])
	line, err := strconv.Atoi(m[2])
	if err != nil || line <= 0 || file == "" {
		return ir.Position{}, fmt.Errorf("%w: %q", ErrBadPosition, desc)
	}
	return ir.Position{File: file, Line: line}, nil
}
