// Package errclass maps raw delivery failures onto a small set of
// user-facing categories. Classification picks a message and a logging
// tag; it never alters control flow.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind is the category of a delivery failure.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindConfiguration      Kind = "configuration"
	KindQuota              Kind = "quota"
	KindNetwork            Kind = "network"
	KindChannelUnavailable Kind = "channel_unavailable"
)

// ErrChannelUnavailable marks a send that failed because no delivery
// channel could take it.
var ErrChannelUnavailable = errors.New("no delivery channel available")

// Classify inspects err and returns its category. nil classifies as
// KindUnknown; callers should not classify successes.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, ErrChannelUnavailable) {
		return KindChannelUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key") ||
		strings.Contains(msg, "credential") || strings.Contains(msg, "unauthorized"):
		return KindConfiguration
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "429"):
		return KindQuota
	case strings.Contains(msg, "network") || strings.Contains(msg, "offline") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout"):
		return KindNetwork
	}
	return KindUnknown
}

// UserMessage returns the transcript text shown for a failure of the
// given kind. Every message ends with the emergency hotline reminder.
func UserMessage(kind Kind) string {
	var lead string
	switch kind {
	case KindConfiguration:
		lead = "**Configuration Error.** API key is missing or invalid."
	case KindQuota:
		lead = "**Service Limit.** AI service quota exceeded. Please try again later."
	case KindNetwork:
		lead = "**Network Error.** Please check your internet connection."
	case KindChannelUnavailable:
		lead = "**Connection Error.** AI services are temporarily unavailable. Please check your internet connection or try again shortly."
	default:
		lead = "**Connection Error.** I'm having trouble connecting to the AI service."
	}
	return lead + " For emergency situations, call 911 immediately."
}
