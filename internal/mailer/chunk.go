package mailer

// BatchSize is the number of emails dispatched per chunk.
const BatchSize = 100

// Chunk splits items into consecutive groups of at most size items. The
// last group holds the remainder. A size below 1 is treated as 1.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
