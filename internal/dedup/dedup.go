// Package dedup suppresses repeated SLA notifications for a deadline or within a time bucket.
//
// Caches are best-effort: a lost or doubled entry costs at most one extra notification.
package dedup

import (
	"context"
	"fmt"
	"time"
)

// Cache is a TTL set of keys. Entries expire on their own; there is no remove.
type Cache interface {
	ContainsKey(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, ttl time.Duration) error
}

// Kind namespaces keys per monitor job.
type Kind string

const (
	KindWarning   Kind = "sla_warn"
	KindViolation Kind = "sla_violate"
)

// Bucket returns the start of the window of width containing now, as unix seconds.
func Bucket(now time.Time, width time.Duration) int64 {
	if width <= 0 {
		return now.Unix()
	}
	return now.Truncate(width).Unix()
}

// Key builds the dedup key for one (ticket, recipient) pair in one bucket.
func Key(kind Kind, ticketID, recipientID string, bucket int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", kind, ticketID, recipientID, bucket)
}

// WarningKey builds the dedup key of a deadline warning. It names the ledger entry instead of a
// bucket, so one deadline maps to one key however the scan runs fall.
func WarningKey(ticketID, recipientID, entryID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", KindWarning, ticketID, recipientID, entryID)
}
