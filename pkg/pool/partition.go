package pool

// Partition splits items into at most n contiguous groups of
// ceil(len(items)/n) elements. Empty groups are never returned.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	total := len(items)
	if total == 0 {
		return nil
	}
	size := (total + n - 1) / n

	groups := make([][]T, 0, n)
	for first := 0; first < total; first += size {
		last := first + size
		if last > total {
			last = total
		}
		groups = append(groups, items[first:last:last])
	}
	return groups
}
