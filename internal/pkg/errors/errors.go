package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrConflict      = errors.New("conflict")
	ErrTooMany       = errors.New("too many requests")
	ErrInternal      = errors.New("internal")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrCrawlActive   = errors.New("crawl already running")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
