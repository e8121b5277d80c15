package cow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kelsos/safe-swap/internal/client"
	"github.com/kelsos/safe-swap/internal/models"
)

var (
	// ErrTransport covers network failures, 5xx answers and malformed responses
	ErrTransport = client.ErrTransport
	// ErrQuoteMismatch is returned when a quote or order does not match what was requested
	ErrQuoteMismatch = errors.New("quote does not match request")
	// ErrQuoteExpired is returned when a quote can no longer back an order
	ErrQuoteExpired = errors.New("quote expired")
	// ErrUIDMismatch is returned when the order book's order id differs from the locally computed one
	ErrUIDMismatch = errors.New("order uid mismatch")
)

// errorTypes the order book uses when the quote behind an order is gone or stale
var quoteExpiredTypes = map[string]bool{
	"QuoteNotFound":       true,
	"InvalidQuote":        true,
	"QuoteExpired":        true,
	"InsufficientValidTo": true,
}

// APIError is a request the order book understood and rejected
type APIError struct {
	StatusCode  int
	ErrorType   string
	Description string
}

func (e *APIError) Error() string {
	if e.ErrorType == "" {
		return fmt.Sprintf("order book rejected request (HTTP %d): %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("order book rejected request (HTTP %d): %s: %s", e.StatusCode, e.ErrorType, e.Description)
}

// QuoteExpired reports whether the rejection is fixed by fetching a fresh quote
func (e *APIError) QuoteExpired() bool {
	return quoteExpiredTypes[e.ErrorType]
}

// NotFound reports whether the order book does not know the requested order
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Is lets errors.Is(err, ErrQuoteExpired) match expired-quote rejections
func (e *APIError) Is(target error) bool {
	return target == ErrQuoteExpired && e.QuoteExpired()
}

// classify turns 4xx status errors into APIError and leaves everything else untouched
func classify(err error) error {
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) || errors.Is(err, client.ErrTransport) {
		return err
	}

	apiErr := &APIError{StatusCode: statusErr.StatusCode}
	var body models.ErrorResponse
	if jsonErr := json.Unmarshal(statusErr.Body, &body); jsonErr == nil && body.ErrorType != "" {
		apiErr.ErrorType = body.ErrorType
		apiErr.Description = body.Description
	} else {
		apiErr.Description = string(statusErr.Body)
	}
	return apiErr
}

// IsRetryable reports whether a read may be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
