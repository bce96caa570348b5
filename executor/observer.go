package executor

import "github.com/letsencrypt/batchdml/batch"

// Observer is told about every row a batch runs. Calls arrive in row order,
// after the row's statements have all succeeded.
type Observer interface {
	// NextCount reports the number of rows the statement for row affected.
	NextCount(b batch.Batch, row int, count int64)
	// NextGeneratedKey reports the key the backend generated for row.
	NextGeneratedKey(b batch.Batch, row int, key int64)
}

type noopObserver struct{}

func (noopObserver) NextCount(batch.Batch, int, int64)        {}
func (noopObserver) NextGeneratedKey(batch.Batch, int, int64) {}

// CountingObserver records what it is told. It is not safe for concurrent
// use; give each batch its own.
type CountingObserver struct {
	total  int64
	counts []int64
	keys   map[int]int64
}

func (o *CountingObserver) NextCount(_ batch.Batch, row int, count int64) {
	for len(o.counts) <= row {
		o.counts = append(o.counts, 0)
	}
	o.counts[row] = count
	o.total += count
}

func (o *CountingObserver) NextGeneratedKey(_ batch.Batch, row int, key int64) {
	if o.keys == nil {
		o.keys = make(map[int]int64)
	}
	o.keys[row] = key
}

// Total returns the sum of all reported counts.
func (o *CountingObserver) Total() int64 {
	return o.total
}

// Counts returns the affected row count of each row, indexed by row.
func (o *CountingObserver) Counts() []int64 {
	return o.counts
}

// GeneratedKey returns the key generated for row, if one was reported.
func (o *CountingObserver) GeneratedKey(row int) (int64, bool) {
	k, ok := o.keys[row]
	return k, ok
}
