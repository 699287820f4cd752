package wvbprotocol

import (
	"errors"
	"strconv"
	"strings"
)

// MaxRange is the largest number of bytes a single range part may span,
// enforced regardless of what the client requested.
const MaxRange = 1024 * 1000

var errInvalidRange = errors.New("wvbprotocol: invalid range")

// byteRange is an inclusive, already-clamped [start, end] span within a
// resource of a known size.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// parseRanges parses an HTTP Range header value ("bytes=0-99,200-299")
// against a resource of the given size, clamping each part's length to
// MaxRange. Returns errInvalidRange for a malformed or unsatisfiable
// header (the caller maps this to 416).
func parseRanges(header string, size int64) ([]byteRange, error) {
	const prefix = "bytes="
	if size <= 0 || !strings.HasPrefix(header, prefix) {
		return nil, errInvalidRange
	}

	var ranges []byteRange
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		r, err := parseOneRange(spec, size)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, errInvalidRange
	}
	return ranges, nil
}

func parseOneRange(spec string, size int64) (byteRange, error) {
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return byteRange{}, errInvalidRange
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return byteRange{}, errInvalidRange
	case startStr == "":
		// Suffix range: the last N bytes of the resource.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, errInvalidRange
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	default:
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 || s >= size {
			return byteRange{}, errInvalidRange
		}
		start = s
		if endStr == "" {
			end = size - 1
		} else {
			e, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || e < start {
				return byteRange{}, errInvalidRange
			}
			end = e
		}
	}

	// end = start + min(end-start, len-start-1, MAX_RANGE-1)
	delta := end - start
	if maxDelta := size - start - 1; maxDelta < delta {
		delta = maxDelta
	}
	if MaxRange-1 < delta {
		delta = MaxRange - 1
	}
	return byteRange{start: start, end: start + delta}, nil
}
