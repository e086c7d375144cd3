package edupage

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Wire markers of the portal's private RPC convention. Requests use raw
// deflate plus base64, responses use plain base64: two independent encode
// paths, not one shared codec.
const (
	compressedMarker = "dz:"
	wrappedMarker    = "eqz:"
	wrongDataMarker  = "eqwd:"
)

// EnvelopeAttempt is one concrete encoding of a logical RPC call. The
// ordinal selects the variant: odd ordinals compress, even ones don't.
// The digest is always computed here over the exact payload string sent on
// the wire, never supplied by the caller.
type EnvelopeAttempt struct {
	Ordinal        int
	Compressed     bool
	Payload        string // eqap
	Digest         string // eqacs, SHA-1 hex of Payload
	EncryptionFlag string // eqaz, "0" or "1"
}

// EncodeEnvelope wraps a form-encoded string for submission under the given
// version ordinal. The encryption flag mirrors the caller's policy; the
// portal's observed clients disagree on whether it may ever be "0", so it is
// an explicit option rather than a constant (see Config.DisableEncryption).
func EncodeEnvelope(form string, ordinal int, encrypt bool) (*EnvelopeAttempt, error) {
	if ordinal < 1 {
		return nil, fmt.Errorf("envelope ordinal must be >= 1, got %d", ordinal)
	}

	compressed := ordinal%2 == 1

	var payload string
	if compressed {
		deflated, err := rawDeflate([]byte(form))
		if err != nil {
			return nil, fmt.Errorf("envelope compression failed: %w", err)
		}
		payload = compressedMarker + base64.StdEncoding.EncodeToString(deflated)
	} else {
		payload = base64.StdEncoding.EncodeToString([]byte(form))
	}

	sum := sha1.Sum([]byte(payload))

	flag := "1"
	if !encrypt {
		flag = "0"
	}

	return &EnvelopeAttempt{
		Ordinal:        ordinal,
		Compressed:     compressed,
		Payload:        payload,
		Digest:         hex.EncodeToString(sum[:]),
		EncryptionFlag: flag,
	}, nil
}

// DecodeEnvelope unwraps a response body. Wrapped responses carry the eqz:
// marker followed by base64 text; anything else is already plain.
func DecodeEnvelope(text string) (string, error) {
	if !strings.HasPrefix(text, wrappedMarker) {
		return text, nil
	}
	raw, err := base64.StdEncoding.DecodeString(text[len(wrappedMarker):])
	if err != nil {
		return "", fmt.Errorf("envelope decode failed: %w", err)
	}
	return string(raw), nil
}

// IsWrongData reports whether a raw response body is the portal's version
// mismatch sentinel, which drives renegotiation at the next ordinal.
func IsWrongData(body string) bool {
	return strings.HasPrefix(body, wrongDataMarker)
}

// rawDeflate compresses without the zlib header, matching the portal's
// decoder.
func rawDeflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
