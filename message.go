package jmqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Message is an immutable inbound MQTT message. The raw payload is captured
// once; typed views of it (text, JSON, numbers, images) are decoded lazily
// on first access and cached. A failed decode never affects dispatch or any
// other accessor, it only fails the call that asked for that form.
type Message struct {
	topic      string
	payload    []byte
	qos        QoS
	retain     bool
	properties map[string]string

	textOnce sync.Once
	text     string
	textErr  error

	jsonOnce sync.Once
	jsonVal  any
	jsonErr  error
}

// NewMessage builds a Message from raw wire data. The payload and property
// map are copied, so the caller may reuse its buffers. Construction never
// fails; decoding is deferred to the accessors.
func NewMessage(topic string, payload []byte, qos QoS, retain bool, properties map[string]string) *Message {
	m := &Message{
		topic:   topic,
		payload: append([]byte(nil), payload...),
		qos:     qos,
		retain:  retain,
	}
	if len(properties) > 0 {
		m.properties = make(map[string]string, len(properties))
		for k, v := range properties {
			m.properties[k] = v
		}
	}
	return m
}

// Topic returns the concrete topic the message arrived on.
func (m *Message) Topic() string { return m.topic }

// QoS returns the quality-of-service level the message was delivered with.
func (m *Message) QoS() QoS { return m.qos }

// Retain reports whether the broker flagged the message as retained.
func (m *Message) Retain() bool { return m.retain }

// Size returns the payload length in bytes.
func (m *Message) Size() int { return len(m.payload) }

// Payload returns a copy of the raw payload bytes.
func (m *Message) Payload() []byte {
	return append([]byte(nil), m.payload...)
}

// Properties returns a copy of the MQTT v5 user properties, or nil when
// there are none (always nil under v3.1.1).
func (m *Message) Properties() map[string]string {
	if m.properties == nil {
		return nil
	}
	props := make(map[string]string, len(m.properties))
	for k, v := range m.properties {
		props[k] = v
	}
	return props
}

// Text returns the payload decoded as UTF-8. Invalid UTF-8 fails with a
// DecodeError; use TextCharset for legacy encodings.
func (m *Message) Text() (string, error) {
	m.textOnce.Do(func() {
		if !utf8.Valid(m.payload) {
			m.textErr = &DecodeError{Form: "text", Err: errInvalidUTF8}
			return
		}
		m.text = string(m.payload)
	})
	return m.text, m.textErr
}

// TextCharset decodes the payload using the named IANA charset, for example
// "latin-1" or "windows-1252". A payload that is not valid in that charset
// fails with a DecodeError.
func (m *Message) TextCharset(charset string) (string, error) {
	enc := lookupCharset(charset)
	if enc == nil {
		return "", &DecodeError{Form: "text", Err: fmt.Errorf("unknown charset %q", charset)}
	}
	decoded, err := enc.NewDecoder().Bytes(m.payload)
	if err != nil {
		return "", &DecodeError{Form: "text", Err: err}
	}
	// x/text decoders substitute U+FFFD for undecodable bytes instead of
	// failing. A re-encode round trip exposes any substitution.
	reencoded, err := enc.NewEncoder().Bytes(decoded)
	if err != nil || !bytes.Equal(reencoded, m.payload) {
		return "", &DecodeError{Form: "text", Err: fmt.Errorf("payload is not valid %s", charset)}
	}
	return string(decoded), nil
}

// lookupCharset resolves an IANA charset name leniently. The registry is
// strict about spelling ("latin1" is registered, "latin-1" is not), so the
// exact name is tried first, then a lowercased form, then one with
// separator characters stripped.
func lookupCharset(name string) encoding.Encoding {
	lowered := strings.ToLower(strings.TrimSpace(name))
	stripped := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == ' ' {
			return -1
		}
		return r
	}, lowered)

	for _, candidate := range []string{name, lowered, stripped} {
		if enc, err := ianaindex.IANA.Encoding(candidate); err == nil && enc != nil {
			return enc
		}
	}
	return nil
}

// JSON parses the payload as JSON and returns the generic value
// (map[string]any, []any, float64, string, bool or nil). The parse runs
// once; repeated calls return the cached result.
func (m *Message) JSON() (any, error) {
	m.jsonOnce.Do(func() {
		if err := json.Unmarshal(m.payload, &m.jsonVal); err != nil {
			m.jsonErr = &DecodeError{Form: "json", Err: err}
		}
	})
	return m.jsonVal, m.jsonErr
}

// DecodeJSON unmarshals the payload into v, for callers with a concrete
// schema in mind.
func (m *Message) DecodeJSON(v any) error {
	if err := json.Unmarshal(m.payload, v); err != nil {
		return &DecodeError{Form: "json", Err: err}
	}
	return nil
}

// Bool interprets the payload as a boolean: "true"/"false", "1"/"0",
// "t"/"f" (case-insensitive, surrounding whitespace ignored).
func (m *Message) Bool() (bool, error) {
	text, err := m.Text()
	if err != nil {
		return false, &DecodeError{Form: "bool", Err: errInvalidUTF8}
	}
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(text)))
	if err != nil {
		return false, &DecodeError{Form: "bool", Err: err}
	}
	return b, nil
}

// Int interprets the payload as a base-10 integer.
func (m *Message) Int() (int64, error) {
	text, err := m.Text()
	if err != nil {
		return 0, &DecodeError{Form: "int", Err: errInvalidUTF8}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, &DecodeError{Form: "int", Err: err}
	}
	return n, nil
}

// Float interprets the payload as a floating point number.
func (m *Message) Float() (float64, error) {
	text, err := m.Text()
	if err != nil {
		return 0, &DecodeError{Form: "float", Err: errInvalidUTF8}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, &DecodeError{Form: "float", Err: err}
	}
	return f, nil
}

// Image returns the raw payload and its detected image format ("png",
// "jpeg", ...) when the payload carries a known image signature.
func (m *Message) Image() ([]byte, string, error) {
	format, ok := sniffImage(m.payload)
	if !ok {
		return nil, "", &DecodeError{Form: "image", Err: errUnknownFormat}
	}
	return m.Payload(), format, nil
}

// DecodeImage decodes the payload into an image.Image. PNG, JPEG and GIF
// decoders are registered; callers needing more register their own via the
// image package.
func (m *Message) DecodeImage() (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(m.payload))
	if err != nil {
		return nil, "", &DecodeError{Form: "image", Err: err}
	}
	return img, format, nil
}

// IsText reports whether the payload is valid UTF-8.
func (m *Message) IsText() bool {
	return utf8.Valid(m.payload)
}

// IsJSON reports whether the payload parses as JSON.
func (m *Message) IsJSON() bool {
	_, err := m.JSON()
	return err == nil
}

// IsImage reports whether the payload starts with a known image signature.
func (m *Message) IsImage() bool {
	_, ok := sniffImage(m.payload)
	return ok
}

// IsAudio reports whether the payload starts with a known audio signature.
func (m *Message) IsAudio() bool {
	_, ok := sniffAudio(m.payload)
	return ok
}

// IsBinary reports whether the payload is not valid UTF-8 text.
func (m *Message) IsBinary() bool {
	return !m.IsText()
}

// EqualsText reports whether the payload decodes to exactly s. A payload
// that is not valid UTF-8 is never equal to any string.
func (m *Message) EqualsText(s string) bool {
	text, err := m.Text()
	return err == nil && text == s
}

// EqualsBytes reports whether the raw payload equals b.
func (m *Message) EqualsBytes(b []byte) bool {
	return bytes.Equal(m.payload, b)
}

// EqualsJSON reports whether the payload and v describe the same JSON
// document, ignoring key order and formatting. v is normalized through a
// JSON round trip, so structs, maps and slices all compare naturally. Any
// decode or marshal failure compares as not equal.
func (m *Message) EqualsJSON(v any) bool {
	parsed, err := m.JSON()
	if err != nil {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return false
	}
	return reflect.DeepEqual(parsed, normalized)
}

// EqualsBool reports whether the payload coerces to the boolean b. A
// payload that does not coerce is never equal.
func (m *Message) EqualsBool(b bool) bool {
	parsed, err := m.Bool()
	return err == nil && parsed == b
}
