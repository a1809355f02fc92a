package sqlite

import "errors"

var (
	ErrTransactionNotFoundInCtx = errors.New("no sqlite transaction found in ctx")
	ErrNestedTransaction        = errors.New("sqlite transaction already open in ctx")
)
