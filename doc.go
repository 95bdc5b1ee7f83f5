// Package jmqtt is a fluent MQTT client wrapper for Go applications.
//
// This package manages:
//   - Builder-style connection configuration with fail-fast validation
//   - Deterministic client-ID derivation from stable device facts
//   - Availability topics with automatic Last Will wiring
//   - Lifecycle hooks around connect and disconnect
//   - Lazy, typed payload decoding on inbound messages
//
// # Architecture
//
// A Builder accumulates options and produces an immutable Config wrapped in
// a Connection. The Connection drives one of two transports, MQTT v3.1.1 or
// v5, behind a shared interface; the lifecycle, routing and hook machinery
// is version-agnostic.
//
//	Builder → Config → Connection ↔ MQTT Broker
//
// # Client identity
//
// The MQTT client ID is never chosen by the caller. It is derived from the
// device (serial number, MAC address) plus the application name and an
// optional instance ID, hashed to a compact token within the protocol's
// 23-character limit. The same app on the same machine always reconnects
// with the same identity; two instances get distinct identities via
// InstanceID.
//
// # Usage
//
//	conn, err := jmqtt.NewV3Builder("broker.local", "sensor-hub").
//	    Login("sensors", os.Getenv("MQTT_PASSWORD")).
//	    Availability("sensor-hub/status", "online", "offline", jmqtt.AtLeastOnce, true).
//	    AutoReconnect(time.Second, 30*time.Second).
//	    FastBuild(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	err = conn.Subscribe(ctx, "sensors/+/temperature", jmqtt.AtLeastOnce,
//	    func(msg *jmqtt.Message) {
//	        if v, err := msg.Float(); err == nil {
//	            log.Printf("%s = %.1f", msg.Topic(), v)
//	        }
//	    })
//
//	conn.PublishString(ctx, "sensors/hub/status", "ready", jmqtt.AtLeastOnce, false)
package jmqtt
