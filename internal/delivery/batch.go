package delivery

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// DefaultBatchSize is the number of mentions carried by one group message.
const DefaultBatchSize = 250

// ErrInvalidBatchSize is returned for a non-positive batch size.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Batch splits items into consecutive chunks of size elements; only the
// last chunk may be shorter. An empty input yields no chunks.
func Batch[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return lo.Chunk(items, size), nil
}
