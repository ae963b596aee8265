package models

import (
	"fmt"
	"time"
)

// ErrorCode is a machine-readable classification for scraping failures.
type ErrorCode string

const (
	ErrNetwork          ErrorCode = "NETWORK_ERROR"
	ErrParse            ErrorCode = "PARSE_ERROR"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrRateLimit        ErrorCode = "RATE_LIMIT_ERROR"
	ErrTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrSelectorNotFound ErrorCode = "SELECTOR_NOT_FOUND"
	ErrProductNotFound  ErrorCode = "PRODUCT_NOT_FOUND"
	ErrRecipe           ErrorCode = "RECIPE_ERROR"
	ErrStorage          ErrorCode = "STORAGE_ERROR"
	ErrUnknown          ErrorCode = "UNKNOWN_ERROR"
)

// Retryable reports whether errors of this code are worth retrying.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrNetwork, ErrRateLimit, ErrTimeout, ErrProductNotFound:
		return true
	}
	return false
}

// ScrapingError is the domain error carried in job.Errors and worker result
// slots. It is a value type; wrapping a cause keeps the chain intact for
// errors.Is/As.
type ScrapingError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	URL       string    `json:"url,omitempty"`
	Retryable bool      `json:"retryable"`
	Time      time.Time `json:"time"`
	cause     error
}

func NewScrapingError(code ErrorCode, url, format string, args ...interface{}) *ScrapingError {
	return &ScrapingError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		URL:       url,
		Retryable: code.Retryable(),
		Time:      time.Now(),
	}
}

// WrapError attaches a cause to a new ScrapingError.
func WrapError(code ErrorCode, url string, err error) *ScrapingError {
	se := NewScrapingError(code, url, "%v", err)
	se.cause = err
	return se
}

func (e *ScrapingError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapingError) Unwrap() error {
	return e.cause
}
