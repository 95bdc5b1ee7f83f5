package jmqtt

import "bytes"

var errInvalidUTF8 = errorString("payload is not valid utf-8")
var errUnknownFormat = errorString("no known signature")

type errorString string

func (e errorString) Error() string { return string(e) }

type signature struct {
	format string
	offset int
	magic  []byte
}

var imageSignatures = []signature{
	{format: "png", magic: []byte("\x89PNG\r\n\x1a\n")},
	{format: "jpeg", magic: []byte{0xFF, 0xD8, 0xFF}},
	{format: "gif", magic: []byte("GIF87a")},
	{format: "gif", magic: []byte("GIF89a")},
	{format: "bmp", magic: []byte("BM")},
	{format: "webp", offset: 8, magic: []byte("WEBP")},
	{format: "tiff", magic: []byte("II*\x00")},
	{format: "tiff", magic: []byte("MM\x00*")},
}

var audioSignatures = []signature{
	{format: "mp3", magic: []byte("ID3")},
	{format: "mp3", magic: []byte{0xFF, 0xFB}},
	{format: "mp3", magic: []byte{0xFF, 0xF3}},
	{format: "mp3", magic: []byte{0xFF, 0xF2}},
	{format: "wav", offset: 8, magic: []byte("WAVE")},
	{format: "ogg", magic: []byte("OggS")},
	{format: "flac", magic: []byte("fLaC")},
}

func matchSignature(payload []byte, sigs []signature) (string, bool) {
	for _, sig := range sigs {
		end := sig.offset + len(sig.magic)
		if len(payload) < end {
			continue
		}
		if bytes.Equal(payload[sig.offset:end], sig.magic) {
			return sig.format, true
		}
	}
	return "", false
}

// sniffImage detects an image format from the payload's leading bytes.
func sniffImage(payload []byte) (string, bool) {
	// WEBP shares the RIFF container with WAV; require the RIFF header.
	if format, ok := matchSignature(payload, imageSignatures); ok {
		if format == "webp" && !bytes.HasPrefix(payload, []byte("RIFF")) {
			return "", false
		}
		return format, true
	}
	return "", false
}

// sniffAudio detects an audio format from the payload's leading bytes.
func sniffAudio(payload []byte) (string, bool) {
	if format, ok := matchSignature(payload, audioSignatures); ok {
		if format == "wav" && !bytes.HasPrefix(payload, []byte("RIFF")) {
			return "", false
		}
		return format, true
	}
	return "", false
}
