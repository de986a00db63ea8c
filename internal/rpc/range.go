package rpc

import "fmt"

// BlockRange represents an inclusive block range
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits an inclusive block range into chunks of at most chunkSize
// blocks so individual getLogs queries stay inside provider limits
func SplitRange(from, to, chunkSize uint64) ([]BlockRange, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d must be >= from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/chunkSize+1)
	start := from
	for start <= to {
		end := start + chunkSize - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
