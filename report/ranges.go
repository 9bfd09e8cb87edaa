package report

import (
	"fmt"
	"sort"
	"strings"
)

// Range is an inclusive range of addresses.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("0x%X", r.Start)
	}
	return fmt.Sprintf("0x%X-0x%X", r.Start, r.End)
}

// CompactRanges merges a set of values into maximal runs of consecutive values.
// The input need not be sorted and may contain duplicates.
func CompactRanges(values []uint64) []Range {
	if len(values) == 0 {
		return nil
	}
	vs := make([]uint64, len(values))
	copy(vs, values)
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })

	rs := []Range{{Start: vs[0], End: vs[0]}}
	for _, v := range vs[1:] {
		last := &rs[len(rs)-1]
		switch {
		case v == last.End:
		case v == last.End+1:
			last.End = v
		default:
			rs = append(rs, Range{Start: v, End: v})
		}
	}
	return rs
}

// FormatRanges renders ranges as `{0x10-0x18, 0x20}`.
func FormatRanges(rs []Range) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
