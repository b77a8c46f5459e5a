package queue

// MaxBatchSize is the largest batch a single queue call accepts.
const MaxBatchSize = 10

// Batch splits items into consecutive groups of size, keeping order. Only the
// last group may be shorter. size <= 0 means MaxBatchSize. Each group is
// capacity-limited so appending to it never overwrites its neighbour.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = MaxBatchSize
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end:end])
	}
	return out
}
