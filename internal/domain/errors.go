package domain

import "errors"

var (
	ErrFetchFailed         = errors.New("fetch failed")
	ErrClassifyParseFailed = errors.New("classification response could not be parsed")
	ErrClassifyCallFailed  = errors.New("classification call failed")
	ErrPersistFailed       = errors.New("persist failed")
	ErrAggregationEmpty    = errors.New("no records to aggregate")
)
