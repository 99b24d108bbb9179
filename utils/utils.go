package utils

import (
	"fmt"
	"strings"
)

// TopicMatches returns true if the received topic matches the subscription topic
func TopicMatches(subscription, received string) bool {
	// Case 1: No wildcard, exact match only
	if !strings.HasSuffix(subscription, "#") {
		return subscription == received
	}

	// Case 2: Wildcard '#'
	if subscription == "#" {
		return true // Matches everything
	}

	if strings.HasSuffix(subscription, "/#") {
		prefix := strings.TrimSuffix(subscription, "/#")
		return received == prefix || strings.HasPrefix(received, prefix+"/")
	}

	// Unsupported wildcard usage (e.g., '#' not at end)
	return false
}

// TopicSegments returns the topic levels below prefix, or nil when the topic
// is not under prefix.
func TopicSegments(prefix, topic string) []string {
	if !strings.HasPrefix(topic, prefix+"/") {
		return nil
	}
	return strings.Split(strings.TrimPrefix(topic, prefix+"/"), "/")
}

// ReplaceBinaryWithHex scans the string and replaces any non-printable characters
// (outside ASCII 32-126) with their hex-encoded form.
func ReplaceBinaryWithHex(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteString(fmt.Sprintf("\\x%02X", r))
		}
	}
	return b.String()
}

// IsLikelyJSON reports whether the first non-space byte opens a JSON object.
func IsLikelyJSON(payload []byte) bool {
	for _, b := range payload {
		if b == ' ' || b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		return (b == '{')
	}
	return false
}

// CleanID strips everything but ASCII letters and digits and lowercases the
// result, so device ids are safe as topic levels.
func CleanID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
