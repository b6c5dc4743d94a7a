package capability

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Encoding helpers exposed to scripts. Pure, always permitted.

func Base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func Base64Decode(s string) (string, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Sites mix standard and URL-safe alphabets freely.
		out, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("invalid base64: %w", err)
		}
	}
	return string(out), nil
}

func HexEncode(s string) string {
	return hex.EncodeToString([]byte(s))
}

func HexDecode(s string) (string, error) {
	out, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	return string(out), nil
}

func URLEncode(s string) string {
	return url.QueryEscape(s)
}

func URLDecode(s string) (string, error) {
	return url.QueryUnescape(s)
}

// GzipDecode decompresses a gzip blob. Some sources return chapter text as
// base64-wrapped gzip; scripts chain base64Decode then gzipDecode.
func GzipDecode(s string) (string, error) {
	r, err := gzip.NewReader(bytes.NewReader([]byte(s)))
	if err != nil {
		return "", fmt.Errorf("invalid gzip data: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("gzip decompress failed: %w", err)
	}
	return string(out), nil
}

// ZlibDecode decompresses a zlib blob.
func ZlibDecode(s string) (string, error) {
	r, err := zlib.NewReader(bytes.NewReader([]byte(s)))
	if err != nil {
		return "", fmt.Errorf("invalid zlib data: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("zlib decompress failed: %w", err)
	}
	return string(out), nil
}

// JSONParse decodes a JSON document to a plain value.
func JSONParse(s string) (interface{}, error) {
	var out interface{}
	if err := sonic.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return out, nil
}

// JSONString encodes a plain value as JSON.
func JSONString(v interface{}) (string, error) {
	out, err := sonic.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("JSON encode failed: %w", err)
	}
	return string(out), nil
}
