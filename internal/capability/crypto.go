package capability

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// Hash and cipher helpers exposed to scripts. Book-source sites obfuscate
// chapter text with a zoo of schemes, so the surface mirrors the common
// ones. All of these are pure and permitted at every level.

func Md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func Sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func Sha3Hex(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func HmacSha256Hex(key, s string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// Pbkdf2Hex derives keyLen bytes from the password, hex encoded.
func Pbkdf2Hex(password, salt string, iterations, keyLen int) string {
	if iterations <= 0 {
		iterations = 10000
	}
	if keyLen <= 0 {
		keyLen = 32
	}
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLen, sha256.New))
}

// AesEncryptBase64 encrypts with AES-CBC/PKCS7 and returns base64.
func AesEncryptBase64(plain, key, iv string) (string, error) {
	block, err := aes.NewCipher(normalizeKey([]byte(key), aes.BlockSize))
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, normalizeKey([]byte(iv), aes.BlockSize)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// AesDecryptBase64 decrypts base64 AES-CBC/PKCS7 ciphertext.
func AesDecryptBase64(encoded, key, iv string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}
	block, err := aes.NewCipher(normalizeKey([]byte(key), aes.BlockSize))
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a block multiple", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, normalizeKey([]byte(iv), aes.BlockSize)).CryptBlocks(out, data)
	return string(pkcs7Unpad(out)), nil
}

// DesDecryptBase64 decrypts base64 DES-CBC/PKCS7 ciphertext. DES is kept
// only because older sites still obfuscate with it.
func DesDecryptBase64(encoded, key, iv string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}
	block, err := des.NewCipher(normalizeKey([]byte(key), 8))
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%8 != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a block multiple", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, normalizeKey([]byte(iv), 8)).CryptBlocks(out, data)
	return string(pkcs7Unpad(out)), nil
}

// RsaEncryptBase64 encrypts with an RSA public key in PEM form (PKCS#1 v1.5).
func RsaEncryptBase64(publicPEM, plain string) (string, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return "", fmt.Errorf("invalid public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse public key failed: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("key is not RSA")
	}
	out, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, []byte(plain))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// RsaDecryptBase64 decrypts with an RSA private key in PEM form.
func RsaDecryptBase64(privatePEM, encoded string) (string, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return "", fmt.Errorf("invalid private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		if k, err2 := x509.ParsePKCS8PrivateKey(block.Bytes); err2 == nil {
			if rk, ok := k.(*rsa.PrivateKey); ok {
				key = rk
			} else {
				return "", fmt.Errorf("key is not RSA")
			}
		} else {
			return "", fmt.Errorf("parse private key failed: %w", err)
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}
	out, err := rsa.DecryptPKCS1v15(rand.Reader, key, data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// normalizeKey pads or truncates key material to size. Real sources ship
// keys of sloppy lengths; matching their behavior beats rejecting them.
func normalizeKey(key []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, key)
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func pkcs7Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > len(data) {
		return data
	}
	return data[:len(data)-padding]
}
