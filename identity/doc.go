// Package identity derives stable MQTT client identifiers from durable
// machine identity.
//
// A client ID is composed from three parts:
//   - a device fingerprint resolved from runtime facts (serial number,
//     globally-administered MAC addresses, hostname fallback)
//   - a stable application name
//   - an optional instance ID separating parallel instances of the same app
//
// The composition is deterministic: the same device, app and instance always
// yield the same client ID across process restarts, so broker-side session
// state survives and duplicate-client-id disconnect storms are avoided.
//
// # Usage
//
//	serial, facts := identity.CollectFacts()
//	fp := identity.ResolveFingerprint(serial, facts)
//	id, err := identity.DeriveClientID(fp, "sensor-hub", "worker1")
//
// Fact collection is best-effort and never fails; on machines with no stable
// facts the fingerprint degrades to the hostname.
package identity
