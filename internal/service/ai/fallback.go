package ai

import (
	"context"
	"errors"
	"strings"
)

// FailureCategory groups provider failures for fallback selection.
type FailureCategory string

const (
	FailureQuota      FailureCategory = "quota"
	FailureCredential FailureCategory = "credential"
	FailureGeneric    FailureCategory = "generic"
)

// Values reported to clients in errorType.
const (
	ErrorTypeQuota   = "quota_exceeded"
	ErrorTypeAuth    = "auth_error"
	ErrorTypeGeneric = "api_error"
)

// EmptyReply replaces a successful response that carried no text.
const EmptyReply = "I'm here to listen. Could you tell me more?"

var fallbackReplies = map[FailureCategory]string{
	FailureQuota: "I'm experiencing high demand right now. While I work to resolve this, please know that I'm here for you. " +
		"Feel free to continue sharing your thoughts - sometimes just expressing yourself can be helpful. " +
		"Is there something specific you'd like to talk about today?",
	FailureCredential: "I'm having a technical issue connecting to my systems. In the meantime, I want you to know that " +
		"your feelings are valid and you're not alone. What's on your mind today?",
	FailureGeneric: "I apologize, but I'm having trouble responding right now. Please try again in a moment. " +
		"I'm here to support you.",
}

var errorTypes = map[FailureCategory]string{
	FailureQuota:      ErrorTypeQuota,
	FailureCredential: ErrorTypeAuth,
	FailureGeneric:    ErrorTypeGeneric,
}

var (
	quotaMarkers      = []string{"quota", "resource_exhausted", "rate limit", "429"}
	credentialMarkers = []string{"api key", "api_key", "permission_denied", "unauthenticated", "unauthorized", "401", "403"}
)

// Classify maps a provider error to a failure category by inspecting its
// message. Timeouts and cancellations are generic.
func Classify(err error) FailureCategory {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return FailureQuota
		}
	}
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return FailureCredential
		}
	}
	return FailureGeneric
}

// Fallback returns the user-facing reply and errorType for a category.
func Fallback(category FailureCategory) (reply, errorType string) {
	reply, ok := fallbackReplies[category]
	if !ok {
		category = FailureGeneric
		reply = fallbackReplies[category]
	}
	return reply, errorTypes[category]
}
