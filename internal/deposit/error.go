package deposit

import "errors"

var (
	ErrProvider              = errors.New("payment provider failed")
	ErrProviderNotConfigured = errors.New("payment provider not configured")
)
