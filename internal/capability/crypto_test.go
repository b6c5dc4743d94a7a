package capability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestHashes(t *testing.T) {
	// Known vectors for the empty string.
	if got := Md5Hex(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Md5Hex(\"\") = %s", got)
	}
	if got := Sha1Hex(""); got != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("Sha1Hex(\"\") = %s", got)
	}
	if got := Sha256Hex(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Sha256Hex(\"\") = %s", got)
	}
	if len(Sha3Hex("x")) != 64 {
		t.Error("Sha3Hex length mismatch")
	}
	if HmacSha256Hex("key", "msg") == HmacSha256Hex("other", "msg") {
		t.Error("hmac ignores key")
	}
}

func TestAesRoundTrip(t *testing.T) {
	plain := "chapter text with some length to cross a block boundary"
	key := "sixteen-byte-key"
	iv := "initial-vector-x"

	encoded, err := AesEncryptBase64(plain, key, iv)
	if err != nil {
		t.Fatalf("AesEncryptBase64() error = %v", err)
	}
	decoded, err := AesDecryptBase64(encoded, key, iv)
	if err != nil {
		t.Fatalf("AesDecryptBase64() error = %v", err)
	}
	if decoded != plain {
		t.Errorf("round trip = %q, want %q", decoded, plain)
	}
}

func TestAesDecryptRejectsGarbage(t *testing.T) {
	if _, err := AesDecryptBase64("not base64!!!", "k", "iv"); err == nil {
		t.Error("invalid base64 accepted")
	}
	if _, err := AesDecryptBase64("YWJj", "key", "iv"); err == nil {
		t.Error("non-block-multiple ciphertext accepted")
	}
}

func TestPbkdf2Deterministic(t *testing.T) {
	a := Pbkdf2Hex("pass", "salt", 1000, 32)
	b := Pbkdf2Hex("pass", "salt", 1000, 32)
	if a != b {
		t.Error("pbkdf2 not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("derived key hex length = %d, want 64", len(a))
	}
}

func TestCodecs(t *testing.T) {
	if got := Base64Encode("hello"); got != "aGVsbG8=" {
		t.Errorf("Base64Encode = %s", got)
	}
	decoded, err := Base64Decode("aGVsbG8=")
	if err != nil || decoded != "hello" {
		t.Errorf("Base64Decode = %q, %v", decoded, err)
	}

	if got, err := HexDecode(HexEncode("papyr")); err != nil || got != "papyr" {
		t.Errorf("hex round trip = %q, %v", got, err)
	}

	if got, err := URLDecode(URLEncode("a b&c")); err != nil || got != "a b&c" {
		t.Errorf("url round trip = %q, %v", got, err)
	}
}

func TestGzipDecode(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte("compressed chapter"))
	w.Close()

	got, err := GzipDecode(buf.String())
	if err != nil {
		t.Fatalf("GzipDecode() error = %v", err)
	}
	if got != "compressed chapter" {
		t.Errorf("GzipDecode() = %q", got)
	}

	if _, err := GzipDecode("plain text"); err == nil {
		t.Error("GzipDecode accepted non-gzip input")
	}
}

func TestJSONCodecs(t *testing.T) {
	val, err := JSONParse(`{"name":"First Book","chapters":[1,2,3]}`)
	if err != nil {
		t.Fatalf("JSONParse() error = %v", err)
	}
	m, ok := val.(map[string]interface{})
	if !ok || m["name"] != "First Book" {
		t.Errorf("JSONParse() = %#v", val)
	}

	out, err := JSONString(map[string]interface{}{"k": "v"})
	if err != nil || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("JSONString() = %q, %v", out, err)
	}

	if _, err := JSONParse("{broken"); err == nil {
		t.Error("JSONParse accepted invalid JSON")
	}
}

func TestRegexHelpers(t *testing.T) {
	got, err := RegexFind("chapter-42.html", `chapter-(\d+)`)
	if err != nil || got != "42" {
		t.Errorf("RegexFind = %q, %v", got, err)
	}

	all, err := RegexFindAll("a1 b2 c3", `\d`)
	if err != nil || len(all) != 3 {
		t.Errorf("RegexFindAll = %v, %v", all, err)
	}

	replaced, err := RegexReplaceAll("x  y\tz", `\s+`, " ")
	if err != nil || replaced != "x y z" {
		t.Errorf("RegexReplaceAll = %q, %v", replaced, err)
	}

	if _, err := RegexFind("x", "("); err == nil {
		t.Error("invalid pattern accepted")
	}
}
