package services

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code int
		want ErrorClass
	}{
		{"user cancelled", PlatformErrUserCancelled, ErrorClassUserCancelled},
		{"service disconnected", PlatformErrServiceDisconnected, ErrorClassRetryable},
		{"service unavailable", PlatformErrServiceUnavailable, ErrorClassRetryable},
		{"network", PlatformErrNetwork, ErrorClassRetryable},
		{"billing unavailable", PlatformErrBillingUnavailable, ErrorClassFatal},
		{"item unavailable", PlatformErrItemUnavailable, ErrorClassFatal},
		{"developer error", PlatformErrDeveloperError, ErrorClassFatal},
		{"item already owned", PlatformErrItemAlreadyOwned, ErrorClassFatal},
		{"unknown code", 99, ErrorClassFatal},
	}

	c := NewErrorClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.code); got != tt.want {
				t.Errorf("Classify(%d) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestShouldReportDebounce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewErrorClassifier()
	c.now = func() time.Time { return now }

	if !c.ShouldReport(ErrorClassRetryable) {
		t.Fatal("first report suppressed")
	}

	// Same category inside the window: the paired duplicate is dropped.
	now = now.Add(200 * time.Millisecond)
	if c.ShouldReport(ErrorClassRetryable) {
		t.Error("duplicate category inside the window was not debounced")
	}

	// A different category reports immediately.
	if !c.ShouldReport(ErrorClassFatal) {
		t.Error("different category suppressed")
	}

	// The same category reports again once the window has passed.
	now = now.Add(2 * time.Second)
	if !c.ShouldReport(ErrorClassFatal) {
		t.Error("report suppressed after the window elapsed")
	}
}
