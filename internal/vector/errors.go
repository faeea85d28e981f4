package vector

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups of unknown document or chunk IDs.
var ErrNotFound = errors.New("not found")

// DimensionMismatchError reports an embedding whose dimension disagrees with
// the dimension established by the index's first insert.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension %d does not match index dimension %d", e.Got, e.Want)
}

// CountMismatchError reports an Add call whose embedding and chunk text
// counts disagree.
type CountMismatchError struct {
	Embeddings int
	Texts      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("embedding count %d does not match chunk text count %d", e.Embeddings, e.Texts)
}
