package services

import (
	"sync"
	"time"
)

type ErrorClass int

const (
	ErrorClassUserCancelled ErrorClass = iota
	ErrorClassRetryable
	ErrorClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassUserCancelled:
		return "user_cancelled"
	case ErrorClassRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// ErrorClassifier maps normalized platform error codes into cancellation,
// retryable and fatal buckets, and debounces repeated classifications of the
// same category so platforms that emit paired error events do not surface
// duplicate reports.
type ErrorClassifier struct {
	Window time.Duration

	now func() time.Time

	mu     sync.Mutex
	last   ErrorClass
	lastAt time.Time
}

func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{Window: time.Second, now: time.Now}
}

func (c *ErrorClassifier) Classify(code int) ErrorClass {
	switch code {
	case PlatformErrUserCancelled:
		return ErrorClassUserCancelled
	case PlatformErrServiceDisconnected, PlatformErrServiceUnavailable, PlatformErrNetwork:
		return ErrorClassRetryable
	default:
		return ErrorClassFatal
	}
}

// ShouldReport returns false when the same category was already reported
// within the debounce window.
func (c *ErrorClassifier) ShouldReport(class ErrorClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastAt.IsZero() && c.last == class && now.Sub(c.lastAt) < c.Window {
		return false
	}
	c.last = class
	c.lastAt = now
	return true
}
