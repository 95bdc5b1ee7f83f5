package identity

import (
	"strings"
	"testing"
)

func TestDeriveClientIDDeterministic(t *testing.T) {
	first, err := DeriveClientID("sn:abc123", "sensor-hub", "")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}
	second, err := DeriveClientID("sn:abc123", "sensor-hub", "")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}
	if first != second {
		t.Errorf("DeriveClientID() not deterministic: %q != %q", first, second)
	}
}

func TestDeriveClientIDInstanceSeparation(t *testing.T) {
	base, err := DeriveClientID("sn:abc123", "sensor-hub", "")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}

	instances := []string{"x", "worker1", "worker2"}
	seen := map[string]string{"": base}
	for _, instance := range instances {
		id, err := DeriveClientID("sn:abc123", "sensor-hub", instance)
		if err != nil {
			t.Fatalf("DeriveClientID(instance=%q) error = %v", instance, err)
		}
		for other, otherID := range seen {
			if id == otherID {
				t.Errorf("instance %q collides with %q: %q", instance, other, id)
			}
		}
		seen[instance] = id
	}
}

func TestDeriveClientIDLengthAndAlphabet(t *testing.T) {
	id, err := DeriveClientID("mac:aa:bb:cc:dd:ee:ff", "a-rather-long-application-name", "worker1")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}
	if len(id) > MaxClientIDLength {
		t.Errorf("len(id) = %d, want <= %d", len(id), MaxClientIDLength)
	}
	for _, r := range id {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !valid {
			t.Errorf("client id %q contains invalid character %q", id, r)
		}
	}
	if !strings.HasPrefix(id, "a-rather-l") {
		t.Errorf("client id %q should start with the app-name prefix", id)
	}
}

func TestDeriveClientIDDistinctFingerprints(t *testing.T) {
	a, err := DeriveClientID("sn:device-a", "agent", "")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}
	b, err := DeriveClientID("sn:device-b", "agent", "")
	if err != nil {
		t.Fatalf("DeriveClientID() error = %v", err)
	}
	if a == b {
		t.Errorf("different fingerprints must yield different ids, both %q", a)
	}
}

func TestDeriveClientIDValidation(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		app         string
		instance    string
	}{
		{"empty app", "sn:x", "", ""},
		{"app with slash", "sn:x", "bad/name", ""},
		{"app with space", "sn:x", "bad name", ""},
		{"instance with wildcard", "sn:x", "agent", "a#b"},
		{"empty fingerprint", "", "agent", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveClientID(tt.fingerprint, tt.app, tt.instance); err == nil {
				t.Errorf("DeriveClientID(%q, %q, %q) expected error", tt.fingerprint, tt.app, tt.instance)
			}
		})
	}
}

func TestValidateComponentNormalises(t *testing.T) {
	got, err := ValidateComponent("  Sensor-HUB  ", "app_name")
	if err != nil {
		t.Fatalf("ValidateComponent() error = %v", err)
	}
	if got != "sensor-hub" {
		t.Errorf("ValidateComponent() = %q, want %q", got, "sensor-hub")
	}
}

func TestCompactTokenDeterministic(t *testing.T) {
	a, err := CompactToken("seed", 12, "ns")
	if err != nil {
		t.Fatalf("CompactToken() error = %v", err)
	}
	b, err := CompactToken("seed", 12, "ns")
	if err != nil {
		t.Fatalf("CompactToken() error = %v", err)
	}
	if a != b {
		t.Errorf("CompactToken() not deterministic: %q != %q", a, b)
	}
	if len(a) != 12 {
		t.Errorf("len(token) = %d, want 12", len(a))
	}

	other, err := CompactToken("seed", 12, "other-ns")
	if err != nil {
		t.Fatalf("CompactToken() error = %v", err)
	}
	if other == a {
		t.Error("tokens from different namespaces must differ")
	}
}

func TestCompactTokenAlphabet(t *testing.T) {
	token, err := CompactToken("some seed material", 20, "ns")
	if err != nil {
		t.Fatalf("CompactToken() error = %v", err)
	}
	for _, r := range token {
		valid := (r >= 'a' && r <= 'z') || (r >= '2' && r <= '7')
		if !valid {
			t.Errorf("token %q contains character %q outside base32 lowercase", token, r)
		}
	}
}
