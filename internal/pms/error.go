package pms

import "errors"

var (
	// ErrNoData means the vendor answered but had nothing for the query.
	ErrNoData  = errors.New("pms returned no data")
	ErrNoToken = errors.New("no cached pms token")
)
