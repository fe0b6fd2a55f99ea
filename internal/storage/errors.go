package storage

import (
	"errors"
	"fmt"
)

// ErrPersistence matches every *PersistenceError.
var ErrPersistence = errors.New("persistence failed")

// PersistenceError reports that the store was unavailable or rejected an
// operation. Op names the store call ("append", "history", ...).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
