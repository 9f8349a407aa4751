// Package xid mints the record identifiers persisted across the schema:
// entity prefix, mint time, random suffix. The timestamp keeps IDs roughly
// sortable by creation and readable in logs and audit rows.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// One prefix per persisted entity.
const (
	User     = "usr"
	Business = "biz"
	Product  = "prd"
	Sale     = "sale"
	SaleLine = "line"
	Audit    = "aud"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
