//
//  Copyright © Trustline Inc. All rights reserved.
//

package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// File layout constants. Partition files hold one JSON entry per line;
// each partition has a small metadata sidecar for O(1) startup.
const (
	partitionPrefix = "audit-"
	partitionSuffix = ".log"
	sidecarSuffix   = ".meta"

	dirPerm  = 0o700
	filePerm = 0o600
)

// Sidecar caches the chain head of a partition so a restart does not have
// to walk the log. The log itself is canonical: on any mismatch the store
// recomputes from the log and rewrites the sidecar.
type Sidecar struct {
	LastHash   string    `json:"last_hash"`
	EntryCount int       `json:"entry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type partitionState struct {
	lastHash string
	count    int
}

// Store is the partitioned file store beneath the ledger writer. A single
// mutex guards the chain head; it is held only for the duration of one
// append.
type Store struct {
	dir string

	mu         sync.Mutex
	partitions map[string]*partitionState
}

// NewStore opens (creating if needed) a ledger directory. The directory
// and all files within are owner-only.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrap(err, "create ledger directory")
	}
	return &Store{
		dir:        dir,
		partitions: make(map[string]*partitionState),
	}, nil
}

// Dir returns the ledger directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) partitionPath(partition string) string {
	return filepath.Join(s.dir, partitionPrefix+partition+partitionSuffix)
}

func (s *Store) sidecarPath(partition string) string {
	return s.partitionPath(partition) + sidecarSuffix
}

// loadState recovers the chain head for a partition, preferring the
// sidecar and falling back to a full walk when the sidecar is missing or
// disagrees with the log. Caller must hold s.mu.
func (s *Store) loadState(partition string) (*partitionState, error) {
	if st, ok := s.partitions[partition]; ok {
		return st, nil
	}

	st := &partitionState{}
	s.partitions[partition] = st

	entries, err := s.readPartition(partition)
	if os.IsNotExist(errors.Cause(err)) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	st.count = len(entries)
	if len(entries) > 0 {
		st.lastHash = entries[len(entries)-1].EntryHash
	}

	// Trust but verify the sidecar; the log wins.
	var sc Sidecar
	if data, err := os.ReadFile(s.sidecarPath(partition)); err == nil {
		if json.Unmarshal(data, &sc) == nil &&
			sc.LastHash == st.lastHash && sc.EntryCount == st.count {
			return st, nil
		}
		logger.Warnf(agent, "recover", "sidecar mismatch for partition %s; recomputed from log", partition)
	}
	s.writeSidecar(partition, st)

	return st, nil
}

func (s *Store) writeSidecar(partition string, st *partitionState) {
	sc := Sidecar{
		LastHash:   st.lastHash,
		EntryCount: st.count,
		UpdatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(&sc)
	if err == nil {
		err = os.WriteFile(s.sidecarPath(partition), data, filePerm)
	}
	if err != nil {
		logger.Warnf(agent, "sidecar", "failed writing sidecar for %s: %+v", partition, err)
	}
}

// Append seals the entry onto its partition chain and writes it durably.
// The store lock is held only for this one append.
func (s *Store) Append(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partition := e.Partition()
	st, err := s.loadState(partition)
	if err != nil {
		return err
	}

	if err := e.Seal(st.lastHash); err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal audit entry")
	}

	f, err := os.OpenFile(s.partitionPath(partition), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return errors.Wrap(err, "open partition")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "append audit entry")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "sync partition")
	}

	st.lastHash = e.EntryHash
	st.count++
	s.writeSidecar(partition, st)

	return nil
}

// readPartition parses a partition log into entries, in append order.
func (s *Store) readPartition(partition string) ([]*Entry, error) {
	f, err := os.Open(s.partitionPath(partition))
	if err != nil {
		return nil, errors.Wrapf(err, "open partition %s", partition)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		e := &Entry{}
		if err := json.Unmarshal([]byte(text), e); err != nil {
			return nil, errors.Wrapf(err, "partition %s line %d", partition, line)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read partition %s", partition)
	}

	return entries, nil
}

// ReadPartition returns all entries of a partition in append order.
func (s *Store) ReadPartition(partition string) ([]*Entry, error) {
	return s.readPartition(partition)
}

// Partitions lists the partitions present on disk, sorted by date.
func (s *Store) Partitions() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger directory")
	}

	var partitions []string
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, partitionPrefix) && strings.HasSuffix(name, partitionSuffix) {
			partitions = append(partitions, strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix))
		}
	}
	sort.Strings(partitions)
	return partitions, nil
}

// Head returns the cached chain head of a partition.
func (s *Store) Head(partition string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState(partition)
	if err != nil {
		return "", 0, err
	}
	return st.lastHash, st.count, nil
}

// IntegrityError names the first entry at which a partition chain breaks.
type IntegrityError struct {
	Partition string
	Line      int
	EntryID   string
	Detail    string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in partition %s at line %d (entry %s): %s",
		e.Partition, e.Line, e.EntryID, e.Detail)
}

// VerifyPartition walks a partition in append order, recomputing each
// entry hash and checking chain linkage. The first entry must have an
// empty previous_hash.
func (s *Store) VerifyPartition(partition string) error {
	entries, err := s.readPartition(partition)
	if err != nil {
		return err
	}

	prev := ""
	for i, e := range entries {
		line := i + 1
		if e.PreviousHash != prev {
			return &IntegrityError{
				Partition: partition, Line: line, EntryID: e.EntryID,
				Detail: fmt.Sprintf("previous_hash %q does not match predecessor hash %q", e.PreviousHash, prev),
			}
		}
		ok, err := e.Verify()
		if err != nil {
			return errors.Wrapf(err, "partition %s line %d", partition, line)
		}
		if !ok {
			return &IntegrityError{
				Partition: partition, Line: line, EntryID: e.EntryID,
				Detail: "entry_hash does not match recomputed hash",
			}
		}
		prev = e.EntryHash
	}

	return nil
}

// VerifyAll verifies every partition, returning the first failure.
func (s *Store) VerifyAll() error {
	partitions, err := s.Partitions()
	if err != nil {
		return err
	}
	for _, p := range partitions {
		if err := s.VerifyPartition(p); err != nil {
			return err
		}
	}
	return nil
}
