package postmanager

import (
	"errors"
	"fmt"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrIDImmutable   = errors.New("post id cannot be changed")
	ErrIncompleteRun = errors.New("generation state is not complete")
)

// PersistenceError 存储不可读写，不重试，直接交给调用方
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
