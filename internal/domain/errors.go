package domain

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Common domain errors
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrEmptySelection = errors.New("selection is empty")

	// Cache domain errors
	ErrEntryTooLarge = errors.New("entry exceeds cache capacity")

	// Task domain errors
	ErrAllItemsFailed = errors.New("all items failed to download")
	ErrConnectionLost = errors.New("connection lost")
)

// connection-loss signatures seen in transport errors that do not unwrap
// to a net.Error
var connectionLostSignatures = []string{
	"connection reset",
	"connection refused",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"unexpected EOF",
}

// IsConnectionLost reports whether err indicates the network link dropped,
// either via the sentinel, a net.Error, or a known message signature.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, sig := range connectionLostSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsCancelled reports whether err is a cooperative cancellation, which is a
// terminal state but not an error to surface.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
