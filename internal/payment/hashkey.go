package payment

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // key derivation mandated by the gateway
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrHashKey is returned when the hash key cannot be produced or opened.
var ErrHashKey = errors.New("payment: hash key")

const (
	ivHexLen   = 16
	saltHexLen = 4
)

// HashParams are the fields signed into the gateway hash_key, in wire order.
type HashParams struct {
	Total        string
	Installments int
	CurrencyCode string
	MerchantKey  string
	InvoiceID    string
}

// Canonical returns the pipe-delimited string encrypted into the hash key.
// Field order is fixed by the gateway.
func (p HashParams) Canonical() string {
	return strings.Join([]string{
		p.Total,
		strconv.Itoa(p.Installments),
		p.CurrencyCode,
		p.MerchantKey,
		p.InvoiceID,
	}, "|")
}

// BuildHashKey encrypts the canonical string with AES-256-CBC under a key
// derived from sha256(sha1hex(appSecret) + salt). The result has the form
// "<ivHex>:<salt>:<base64>" with every "/" replaced by "__".
//
// The 16 hex characters of ivHex are used verbatim as the 16 IV bytes, which
// is how the gateway reads the bundle back. rnd defaults to crypto/rand.
func BuildHashKey(p HashParams, appSecret string, rnd io.Reader) (string, error) {
	if strings.TrimSpace(appSecret) == "" {
		return "", fmt.Errorf("%w: app secret is empty", ErrHashKey)
	}
	if rnd == nil {
		rnd = rand.Reader
	}
	ivRaw := make([]byte, ivHexLen/2)
	if _, err := io.ReadFull(rnd, ivRaw); err != nil {
		return "", fmt.Errorf("%w: read iv: %v", ErrHashKey, err)
	}
	saltRaw := make([]byte, saltHexLen/2)
	if _, err := io.ReadFull(rnd, saltRaw); err != nil {
		return "", fmt.Errorf("%w: read salt: %v", ErrHashKey, err)
	}
	ivHex := hex.EncodeToString(ivRaw)
	salt := hex.EncodeToString(saltRaw)

	block, err := aes.NewCipher(deriveKey(appSecret, salt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashKey, err)
	}
	plain := pkcs7Pad([]byte(p.Canonical()), block.BlockSize())
	sealed := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, []byte(ivHex)).CryptBlocks(sealed, plain)

	bundle := ivHex + ":" + salt + ":" + base64.StdEncoding.EncodeToString(sealed)
	return strings.ReplaceAll(bundle, "/", "__"), nil
}

// DecryptHashKey reverses BuildHashKey and returns the canonical string.
func DecryptHashKey(hashKey, appSecret string) (string, error) {
	bundle := strings.ReplaceAll(hashKey, "__", "/")
	parts := strings.SplitN(bundle, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed bundle", ErrHashKey)
	}
	ivHex, salt, encoded := parts[0], parts[1], parts[2]
	if len(ivHex) != ivHexLen {
		return "", fmt.Errorf("%w: iv must be %d characters", ErrHashKey, ivHexLen)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrHashKey, err)
	}
	block, err := aes.NewCipher(deriveKey(appSecret, salt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashKey, err)
	}
	if len(sealed) == 0 || len(sealed)%block.BlockSize() != 0 {
		return "", fmt.Errorf("%w: ciphertext is not block aligned", ErrHashKey)
	}
	plain := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(block, []byte(ivHex)).CryptBlocks(plain, sealed)
	out, err := pkcs7Unpad(plain, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func deriveKey(appSecret, salt string) []byte {
	password := sha1.Sum([]byte(appSecret)) //nolint:gosec
	key := sha256.Sum256([]byte(hex.EncodeToString(password[:]) + salt))
	return key[:]
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrHashKey)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrHashKey)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrHashKey)
		}
	}
	return b[:len(b)-n], nil
}
