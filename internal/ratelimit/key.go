package ratelimit

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "ratelimit:"

// Principal is the authenticated caller a counter key is scoped to.
type Principal struct {
	ID uint
}

// ResolveKey derives the counter key for a caller hitting path. Address and
// path are hashed to bound key length and keep raw values out of the store.
func ResolveKey(principal *Principal, sourceAddress, path string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	if principal != nil {
		b.WriteString("user_")
		b.WriteString(strconv.FormatUint(uint64(principal.ID), 10))
		b.WriteString(":")
	}
	b.WriteString("ip_")
	b.WriteString(digest(sourceAddress))
	b.WriteString(":endpoint_")
	b.WriteString(digest(path))
	return b.String()
}

func digest(s string) string {
	h, _ := blake2b.New(16, nil) // only fails for invalid size or key
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
