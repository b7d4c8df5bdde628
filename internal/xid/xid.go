// Package xid issues prefixed identifiers for rows created at runtime
// (sales, payments, movements, ...). Ids sort roughly by creation time and
// only need to be unique within one deployment.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// New returns "<prefix>-<unix nanos>-<8 random bytes, hex>". If the random
// source fails the timestamp alone is used.
func New(prefix string) string {
	id := prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return id
	}
	return id + "-" + hex.EncodeToString(buf[:])
}
