//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package ledger implements the append-only, hash-chained audit log.
//
// Entries are grouped into partitions by UTC calendar date; within a
// partition each entry's previous_hash equals the entry_hash of its
// predecessor, and the first entry of a partition carries an empty
// previous_hash. Entry hashes are SHA-256 over the RFC 8785 canonical JSON
// of the entry with its entry_hash field blanked, so any mutation of a
// stored entry is detectable by recomputation.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
)

// EventType categorizes an audit entry.
type EventType string

// Audit event types.
const (
	EventDecision        EventType = "DECISION"
	EventPolicyCheck     EventType = "POLICY_CHECK"
	EventPolicyViolation EventType = "POLICY_VIOLATION"
	EventHumanOverride   EventType = "HUMAN_OVERRIDE"
	EventEscalation      EventType = "ESCALATION"
	EventSystem          EventType = "SYSTEM_EVENT"
)

// Entry is one immutable audit record. Fields are fixed at append time;
// the zero value of PreviousHash marks the first entry of a partition.
type Entry struct {
	EntryID       string                 `json:"entry_id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     EventType              `json:"event_type"`
	DecisionID    string                 `json:"decision_id"`
	SessionID     string                 `json:"session_id"`
	UserID        string                 `json:"user_id"`
	Action        string                 `json:"action"`
	Confidence    float64                `json:"confidence"`
	DecidedBy     string                 `json:"decided_by"`
	PolicyVersion string                 `json:"policy_version"`
	AgentOutputs  map[string]interface{} `json:"agent_outputs"`
	Metadata      map[string]interface{} `json:"metadata"`
	PreviousHash  string                 `json:"previous_hash"`
	EntryHash     string                 `json:"entry_hash"`
}

// NewEntry creates an entry with a fresh identifier and UTC timestamp.
// The hash fields are assigned by the store at append time.
func NewEntry(eventType EventType) *Entry {
	return &Entry{
		EntryID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
	}
}

// Partition returns the UTC calendar date partition the entry belongs to.
func (e *Entry) Partition() string {
	return e.Timestamp.UTC().Format("2006-01-02")
}

// ComputeHash returns the SHA-256 hex digest of the entry's canonical JSON
// with entry_hash blanked. Canonical form is RFC 8785: keys sorted at every
// nesting level, no insignificant whitespace, UTF-8.
func (e *Entry) ComputeHash() (string, error) {
	blanked := *e
	blanked.EntryHash = ""

	raw, err := json.Marshal(&blanked)
	if err != nil {
		return "", errors.Wrap(err, "marshal audit entry")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", errors.Wrap(err, "canonicalize audit entry")
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Seal assigns the chain linkage and the entry hash.
func (e *Entry) Seal(previousHash string) error {
	e.PreviousHash = previousHash
	h, err := e.ComputeHash()
	if err != nil {
		return err
	}
	e.EntryHash = h
	return nil
}

// Verify recomputes the entry hash and compares it to the stored value.
func (e *Entry) Verify() (bool, error) {
	h, err := e.ComputeHash()
	if err != nil {
		return false, err
	}
	return h == e.EntryHash, nil
}
