package httpapi

import "encoding/base64"

// decodeImageBase64 decodes the wire encoding used to carry raw image
// bytes inside a JSON payload.
func decodeImageBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
