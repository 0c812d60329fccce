package http_range

import (
	"errors"
	"strconv"
	"strings"
)

type Range struct {
	Start int64
	End   int64
}

var (
	// ErrNoOverlap marks a syntactically valid range that falls outside the file.
	ErrNoOverlap = errors.New("invalid range: failed to overlap")

	ErrInvalid = errors.New("invalid range")
)

// Parse parses a Range header against a known size. Only forward ranges are
// accepted: "start-end" and "start-". Suffix ranges ("-n") are rejected as
// malformed.
func Parse(header string, size int64) ([]*Range, error) {
	unit, spec, ok := strings.Cut(header, "=")
	if !ok || strings.TrimSpace(unit) != "bytes" {
		return nil, ErrInvalid
	}

	arr := strings.Split(spec, ",")
	ranges := make([]*Range, 0, len(arr))

	for _, value := range arr {
		startStr, endStr, ok := strings.Cut(strings.TrimSpace(value), "-")
		if !ok || startStr == "" {
			return nil, ErrInvalid
		}

		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, ErrInvalid
		}

		end := size - 1
		if endStr != "" {
			end, err = strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, ErrInvalid
			}
		}

		if start < 0 || start > end || end >= size {
			return nil, ErrNoOverlap
		}

		ranges = append(ranges, &Range{
			Start: start,
			End:   end,
		})
	}

	if len(ranges) == 0 {
		return nil, ErrNoOverlap
	}

	return ranges, nil
}
