// Package hashing derives short codes from original URLs.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash/adler32"
	"hash/crc32"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Supported algorithm names.
const (
	MD5     = "MD5"
	SHA256  = "SHA256"
	CRC32   = "CRC32"
	ADLER32 = "ADLER32"
	BASE62  = "BASE62"
)

// Default is used when the caller does not choose an algorithm.
const Default = MD5

const (
	md5CodeLength    = 8
	sha256CodeLength = 10
	base62CodeLength = 8
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Algorithms returns the supported algorithm names.
func Algorithms() []string {
	return []string{MD5, SHA256, CRC32, ADLER32, BASE62}
}

// Canonical maps a user supplied name to the algorithm that will actually run.
// Matching is case-insensitive and unknown names fall back to CRC32.
func Canonical(algorithm string) string {
	name := strings.ToUpper(strings.TrimSpace(algorithm))
	switch name {
	case MD5, SHA256, CRC32, ADLER32, BASE62:
		return name
	default:
		return CRC32
	}
}

// IsDeterministic reports whether the algorithm always yields the same code for the same URL.
func IsDeterministic(algorithm string) bool {
	return Canonical(algorithm) != BASE62
}

// Shorten returns the short code for url and the canonical algorithm name used.
func Shorten(url, algorithm string) (string, string, error) {
	name := Canonical(algorithm)
	data := []byte(url)

	switch name {
	case MD5:
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])[:md5CodeLength], name, nil
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])[:sha256CodeLength], name, nil
	case ADLER32:
		return strconv.FormatUint(uint64(adler32.Checksum(data)), 16), name, nil
	case BASE62:
		code, err := randomBase62(base62CodeLength)
		if err != nil {
			return "", name, err
		}
		return code, name, nil
	default:
		return strconv.FormatUint(uint64(crc32.ChecksumIEEE(data)), 16), name, nil
	}
}

func randomBase62(length int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	code := encodeBase62(id[:])
	for len(code) < length {
		code = "0" + code
	}
	return code[:length], nil
}

func encodeBase62(b []byte) string {
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return "0"
	}

	base := big.NewInt(int64(len(base62Alphabet)))
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, base62Alphabet[mod.Int64()])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
