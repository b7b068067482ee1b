package usecase

// SplitBatches groups frame paths into fixed-size batches, preserving
// order; the last batch may be short. A size of zero or less puts
// everything in one batch.
func SplitBatches(paths []string, size int) [][]string {
	if len(paths) == 0 {
		return nil
	}
	if size <= 0 || size >= len(paths) {
		return [][]string{paths}
	}

	batches := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		batches = append(batches, paths[start:end])
	}
	return batches
}
