package identity

import (
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FactKind classifies a collected device fact.
type FactKind string

const (
	// FactMAC is a globally-administered network interface MAC address.
	FactMAC FactKind = "mac"

	// FactBluetooth is a Bluetooth controller address.
	FactBluetooth FactKind = "bluetooth"
)

// Fact is a single stable device fact.
type Fact struct {
	Kind  FactKind
	Value string
}

// serialPaths are probed in order for a firmware-provided serial number.
var serialPaths = []string{
	"/sys/class/dmi/id/product_serial",
	"/sys/firmware/devicetree/base/serial-number",
	"/proc/device-tree/serial-number",
}

// CollectFacts gathers stable device facts, best-effort. It never fails;
// missing facts simply narrow the fingerprint sources.
//
// Serial number detection reads DMI and device-tree paths (covers both x86
// and ARM single-board machines). MAC collection keeps only globally
// administered, non-virtual addresses so container and VPN interfaces do not
// destabilise the fingerprint.
func CollectFacts() (serial string, facts []Fact) {
	return serialNumber(), collectConnections()
}

// serialNumber probes the known firmware paths and /proc/cpuinfo.
func serialNumber() string {
	for _, path := range serialPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		value := strings.Trim(strings.TrimSpace(string(data)), "\x00")
		if value != "" {
			return value
		}
	}

	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(strings.ToLower(line), "serial") {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			if v := strings.TrimSpace(value); v != "" {
				return v
			}
		}
	}
	return ""
}

// collectConnections gathers MAC and Bluetooth facts, normalised, filtered
// and sorted deterministically (mac before bluetooth, then by value).
func collectConnections() []Fact {
	seen := make(map[Fact]struct{})

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			mac, ok := normalizeMAC(iface.HardwareAddr.String())
			if !ok || !isGlobalMAC(mac) {
				continue
			}
			seen[Fact{FactMAC, mac}] = struct{}{}
		}
	}

	controllers, err := filepath.Glob("/sys/class/bluetooth/*/address")
	if err == nil {
		for _, path := range controllers {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			mac, ok := normalizeMAC(strings.TrimSpace(string(data)))
			if !ok {
				continue
			}
			seen[Fact{FactBluetooth, mac}] = struct{}{}
		}
	}

	facts := make([]Fact, 0, len(seen))
	for f := range seen {
		facts = append(facts, f)
	}
	sortFacts(facts)
	return facts
}

// ResolveFingerprint builds a stable device fingerprint seed from facts.
//
// Priority:
//  1. serial number
//  2. first connection fact (mac before bluetooth, then by value)
//  3. hostname fallback
func ResolveFingerprint(serial string, facts []Fact) string {
	if s := strings.TrimSpace(serial); s != "" {
		return "sn:" + strings.ToLower(s)
	}

	sorted := make([]Fact, len(facts))
	copy(sorted, facts)
	sortFacts(sorted)
	for _, f := range sorted {
		if v := strings.TrimSpace(f.Value); v != "" {
			return string(f.Kind) + ":" + strings.ToLower(v)
		}
	}

	if host, err := os.Hostname(); err == nil {
		if h := strings.ToLower(strings.TrimSpace(host)); h != "" {
			return "host:" + h
		}
	}
	return "host:unknown"
}

func sortFacts(facts []Fact) {
	rank := func(k FactKind) int {
		switch k {
		case FactMAC:
			return 0
		case FactBluetooth:
			return 1
		default:
			return 2
		}
	}
	sort.Slice(facts, func(i, j int) bool {
		if rank(facts[i].Kind) != rank(facts[j].Kind) {
			return rank(facts[i].Kind) < rank(facts[j].Kind)
		}
		return facts[i].Value < facts[j].Value
	})
}

// normalizeMAC reduces a MAC string to canonical aa:bb:cc:dd:ee:ff form.
// Returns false for anything that is not 6 hex octets or is an all-zero or
// broadcast address.
func normalizeMAC(s string) (string, bool) {
	var hexDigits strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			hexDigits.WriteRune(r)
		}
	}
	raw := hexDigits.String()
	if len(raw) != 12 {
		return "", false
	}

	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, raw[i:i+2])
	}
	mac := strings.Join(parts, ":")
	if mac == "00:00:00:00:00:00" || mac == "ff:ff:ff:ff:ff:ff" {
		return "", false
	}
	return mac, true
}

// isGlobalMAC reports whether the address is unicast and globally
// administered (locally-administered addresses belong to bridges, VPNs and
// containers and are not stable).
func isGlobalMAC(mac string) bool {
	first := mac[:2]
	var b byte
	for _, r := range first {
		b <<= 4
		switch {
		case r >= '0' && r <= '9':
			b |= byte(r - '0')
		case r >= 'a' && r <= 'f':
			b |= byte(r-'a') + 10
		}
	}
	return b&0x01 == 0 && b&0x02 == 0
}
