// Package keys builds the deterministic event keys used by the ingest
// deduplicator. Two ingests of the same source record always produce the
// same key, so the (source_system, event_key) pair is stable across runs.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EventKey returns the hex SHA256 of the source-identifying parts joined
// with "|". Parts are trimmed; empty parts are kept so field positions
// stay aligned.
func EventKey(parts ...string) string {
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimSpace(p)
	}
	hash := sha256.Sum256([]byte(strings.Join(trimmed, "|")))
	return hex.EncodeToString(hash[:])
}

// TransactionKeyParts are the source-identifying fields of a reported
// transaction, in the order they are hashed.
type TransactionKeyParts struct {
	ResourceURL    string
	ActivityID     string
	TransactionRef string
	TypeCode       string
	Date           string
	ValueDate      string
	Value          string
	Currency       string
	ReceiverRef    string
	ReceiverName   string
	ProviderRef    string
	ProviderName   string
}

// TransactionEventKey builds the event key for a reported transaction.
func TransactionEventKey(p TransactionKeyParts) string {
	return EventKey(
		p.ResourceURL,
		p.ActivityID,
		p.TransactionRef,
		p.TypeCode,
		p.Date,
		p.ValueDate,
		p.Value,
		p.Currency,
		p.ReceiverRef,
		p.ReceiverName,
		p.ProviderRef,
		p.ProviderName,
	)
}
