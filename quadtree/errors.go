package quadtree

import "github.com/aukilabs/go-tooling/pkg/errors"

const (
	// ErrTypePoolExhausted is the type of errors returned when a fixed
	// capacity node pool cannot hand out another node.
	ErrTypePoolExhausted = "quadtree_pool_exhausted"

	// ErrTypeInvariantViolation is the type of errors that reveal a logic
	// defect or an entity whose geometry the index cannot work with.
	ErrTypeInvariantViolation = "quadtree_invariant_violation"

	// ErrTypeInvalidConfig is the type of errors returned by constructors
	// given unusable parameters.
	ErrTypeInvalidConfig = "quadtree_invalid_config"
)

// IsPoolExhausted reports whether err was caused by a node pool running out
// of capacity.
func IsPoolExhausted(err error) bool {
	return errors.IsType(err, ErrTypePoolExhausted)
}

// IsInvariantViolation reports whether err signals an internal invariant
// violation.
func IsInvariantViolation(err error) bool {
	return errors.IsType(err, ErrTypeInvariantViolation)
}

func errPoolExhausted(capacity int) error {
	return errors.New("node pool exhausted").
		WithType(ErrTypePoolExhausted).
		WithTag("capacity", capacity)
}
