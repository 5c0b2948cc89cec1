package models

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadtree/quadtree"
)

const (
	ErrTypeSpaceNotFound  = "space_not_found"
	ErrTypeEntityNotFound = "entity_not_found"
	ErrTypeBadRequest     = "bad_request"
)

func errSpaceClosed(id uint32) error {
	return errors.New("space closed").
		WithType(ErrTypeSpaceNotFound).
		WithTag("space_id", id)
}

func errSpaceNotFound(id uint32) error {
	return errors.New("space not found").
		WithType(ErrTypeSpaceNotFound).
		WithTag("space_id", id)
}

func errEntityNotFound(spaceID, id uint32) error {
	return errors.New("entity not found").
		WithType(ErrTypeEntityNotFound).
		WithTag("space_id", spaceID).
		WithTag("entity_id", id)
}

const (
	ErrTypeSpaceFull    = "space_full"
	ErrTypeIndexFailure = "index_failure"
)

// indexErrorType returns the type of the error reported to clients when the
// spatial index fails with err.
func indexErrorType(err error) string {
	if quadtree.IsPoolExhausted(err) {
		return ErrTypeSpaceFull
	}
	return ErrTypeIndexFailure
}
