package gmail

import (
	"encoding/base64"
	"mime"
	"strings"
	"unicode/utf8"
)

var urlSafeReplacer = strings.NewReplacer("-", "+", "_", "/")

// Decode turns a base64url body (padded or not) into raw bytes.
func Decode(encoded string) ([]byte, error) {
	std := urlSafeReplacer.Replace(strings.TrimSpace(encoded))
	if rem := len(std) % 4; rem != 0 {
		std += strings.Repeat("=", 4-rem)
	}
	out, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, Wrap(ErrProcessing, "decode body", err)
	}
	return out, nil
}

// DecodeText decodes a body and requires the result to be valid UTF-8.
func DecodeText(encoded string) (string, error) {
	raw, err := Decode(encoded)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", Errorf(ErrProcessing, "decode body", "content is not valid utf-8")
	}
	return string(raw), nil
}

// Encode is the inverse of Decode; it produces unpadded base64url.
func Encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// FindPart walks the tree pre-order and returns the first part whose media
// type equals mimeType, or nil.
func FindPart(root *Part, mimeType string) *Part {
	if root == nil {
		return nil
	}
	if sameMediaType(root.MimeType, mimeType) {
		return root
	}
	for i := range root.Parts {
		if found := FindPart(&root.Parts[i], mimeType); found != nil {
			return found
		}
	}
	return nil
}

func sameMediaType(a, b string) bool {
	return mediaType(a) == mediaType(b)
}

func mediaType(v string) string {
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	v, _, _ = strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(v))
}
