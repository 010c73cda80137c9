package simnet

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("simnet: required parameter is nil")

	// ErrNotFound indicates the block or transaction was not found in the store.
	ErrNotFound = errors.New("simnet: not found")

	// ErrDuplicateBlock indicates a block at this height already exists.
	ErrDuplicateBlock = errors.New("simnet: duplicate block")

	// ErrBrokenChain indicates a block does not extend the stored tip.
	ErrBrokenChain = errors.New("simnet: block does not extend tip")

	// ErrInvalidBlockCount indicates a non-positive number of blocks to mine.
	ErrInvalidBlockCount = errors.New("simnet: block count must be positive")
)
