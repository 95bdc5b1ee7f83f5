package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxClientIDLength is the MQTT-recommended client identifier length cap of
// 23 UTF-8 encoded bytes. Brokers commonly accept more, but staying within
// the cap keeps identifiers universally valid.
const MaxClientIDLength = 23

// tokenNamespace domain-separates client-id tokens from other CompactToken
// users.
const tokenNamespace = "mqtt-client"

// componentPattern restricts app and instance identity components to
// letters, digits and '-'. The separator used for seed composition is not in
// this alphabet, so distinct component tuples cannot collide.
var componentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidateComponent checks an app_name or instance_id component and returns
// its normalised (trimmed, lowercased) form.
func ValidateComponent(value, field string) (string, error) {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	if !componentPattern.MatchString(normalized) {
		return "", fmt.Errorf("%s may only contain letters, digits and '-'", field)
	}
	return strings.ToLower(normalized), nil
}

// DeriveClientID builds a deterministic MQTT client ID from a device
// fingerprint, an app name and an optional instance ID (empty = unset).
//
// The ID is a readable app-name prefix joined to a hash token over the full
// seed, capped at MaxClientIDLength. The same inputs always produce the same
// ID; any change to app name or instance ID produces a different one.
func DeriveClientID(fingerprint, appName, instanceID string) (string, error) {
	return deriveClientID(fingerprint, appName, instanceID, MaxClientIDLength)
}

func deriveClientID(fingerprint, appName, instanceID string, maxLength int) (string, error) {
	if maxLength < 8 {
		return "", fmt.Errorf("max length must be >= 8")
	}
	if strings.TrimSpace(fingerprint) == "" {
		return "", fmt.Errorf("fingerprint must not be empty")
	}

	app, err := ValidateComponent(appName, "app_name")
	if err != nil {
		return "", err
	}

	seed := fingerprint + unitSeparator + app
	if instanceID != "" {
		instance, err := ValidateComponent(instanceID, "instance_id")
		if err != nil {
			return "", err
		}
		seed += unitSeparator + instance
	}

	hashLength := maxLength - 4
	if hashLength > 12 {
		hashLength = 12
	}
	if hashLength < 8 {
		hashLength = 8
	}

	suffix, err := CompactToken(seed, hashLength, tokenNamespace)
	if err != nil {
		return "", err
	}

	prefixBudget := maxLength - len(suffix) - 1
	if prefixBudget <= 0 {
		return suffix[:min(maxLength, len(suffix))], nil
	}

	prefix := app
	if len(prefix) > prefixBudget {
		prefix = prefix[:prefixBudget]
	}

	id := prefix + "-" + suffix
	if len(id) > maxLength {
		id = id[:maxLength]
	}
	return id, nil
}
