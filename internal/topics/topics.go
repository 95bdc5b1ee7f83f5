// Package topics validates MQTT topic names and filters and matches
// topic names against wildcard filters.
package topics

import (
	"errors"
	"strings"
)

// Validation errors. Callers wrap these into their own error taxonomy.
var (
	ErrEmpty          = errors.New("topic must not be empty")
	ErrWildcardInName = errors.New("topic name must not contain wildcard characters")
	ErrNulCharacter   = errors.New("topic must not contain the NUL character")
	ErrTooLong        = errors.New("topic exceeds 65535 bytes")
	ErrBadWildcard    = errors.New("malformed wildcard in topic filter")
)

// maxTopicLength is the MQTT limit for a UTF-8 encoded topic string.
const maxTopicLength = 65535

// sharedPrefix marks a shared subscription filter ($share/{group}/{filter}).
const sharedPrefix = "$share/"

// ValidateName checks a concrete topic name as used for publishing and for
// will/availability topics. Wildcards are not permitted in topic names.
func ValidateName(topic string) error {
	if topic == "" {
		return ErrEmpty
	}
	if len(topic) > maxTopicLength {
		return ErrTooLong
	}
	if strings.ContainsRune(topic, '\x00') {
		return ErrNulCharacter
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrWildcardInName
	}
	return nil
}

// ValidateFilter checks a subscription topic filter. Wildcards are permitted
// with the usual placement rules: '+' must occupy a whole level and '#' must
// be the final level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrEmpty
	}
	if len(filter) > maxTopicLength {
		return ErrTooLong
	}
	if strings.ContainsRune(filter, '\x00') {
		return ErrNulCharacter
	}

	levels := strings.Split(strings.TrimPrefix(filter, sharedPrefix), "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return ErrBadWildcard
			}
		case strings.ContainsRune(level, '#'):
			return ErrBadWildcard
		case level == "+":
			// Single-level wildcard occupying a whole level is fine.
		case strings.ContainsRune(level, '+'):
			return ErrBadWildcard
		}
	}
	return nil
}

// Match reports whether a topic name matches a topic filter, including
// shared-subscription filters.
func Match(filter, name string) bool {
	if tf, ok := strings.CutPrefix(filter, sharedPrefix); ok {
		// Strip the share group: $share/{group}/{filter}.
		idx := strings.Index(tf, "/")
		if idx == -1 {
			return false
		}
		filter = tf[idx+1:]
	}

	filters := strings.Split(filter, "/")
	names := strings.Split(name, "/")

	// Wildcards never match reserved topics ($SYS and friends); the first
	// level of the filter must name the '$' level literally.
	if strings.HasPrefix(name, "$") && (filters[0] == "+" || filters[0] == "#") {
		return false
	}

	for i, level := range filters {
		if level == "#" {
			// Multi-level wildcard matches the remainder, including the
			// parent level itself.
			return i == len(filters)-1
		}
		if i >= len(names) {
			return false
		}
		if level == "+" {
			continue
		}
		if level != names[i] {
			return false
		}
	}

	return len(filters) == len(names)
}
