// Package memory is the persistent semantic store of past interactions and
// automation artifacts. It is backed by chromem-go, an embedded vector
// database persisting under the user's infrabot directory.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Record kinds as stored in the "type" metadata field.
const (
	KindUserRequest = "user_request"
	KindTaskResult  = "task_result"
	KindError       = "error"
	KindPlaybook    = "playbook"
	KindExecResult  = "execution_result"
)

// Collection names, one per logical partition.
const (
	colInteractions = "interactions"
	colPlaybooks    = "playbooks"
	colResults      = "results"
)

var partitions = []string{colInteractions, colPlaybooks, colResults}

// Record is one stored entry. Relevance is a semantic distance: lower means
// more similar. Entries are immutable once written.
type Record struct {
	ID        string
	Kind      string
	Content   string
	Metadata  map[string]string
	Relevance float64
}

// ExecutionOutcome is the subset of an executor result that gets persisted.
type ExecutionOutcome struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
	Err        string `json:"error,omitempty"`
}

// Store is the Context Store. Reads may run concurrently with a write; a
// single RWMutex gives single-writer/multiple-reader discipline across the
// partitions.
type Store struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *zap.Logger

	mu   sync.RWMutex
	cols map[string]*chromem.Collection
}

// New opens (creating if needed) the persistent store at path. The embedding
// function is injected so tests can run without a model server.
func New(path string, compress bool, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Store, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}

	s := &Store{
		db:     db,
		embed:  embed,
		logger: logger,
		cols:   make(map[string]*chromem.Collection, len(partitions)),
	}

	for _, name := range partitions {
		col, err := db.GetOrCreateCollection(name, nil, embed)
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", name, err)
		}
		s.cols[name] = col
	}

	logger.Debug("context store opened", zap.String("path", path))
	return s, nil
}

// RecordInteraction appends an immutable interaction entry and returns its id.
func (s *Store) RecordInteraction(ctx context.Context, kind, content string, metadata map[string]string) (string, error) {
	id := uuid.NewString()
	md := baseMetadata(kind)
	for k, v := range metadata {
		md[k] = v
	}
	if err := s.add(ctx, colInteractions, id, content, md); err != nil {
		return "", fmt.Errorf("recording interaction: %w", err)
	}
	return id, nil
}

// RecordExecution persists a playbook/result pair under a shared correlation
// id: <id>_playbook in the playbooks partition and <id>_result in results.
func (s *Store) RecordExecution(ctx context.Context, task, playbook string, outcome ExecutionOutcome) (string, error) {
	id := uuid.NewString()
	success := fmt.Sprintf("%t", outcome.Success)
	ts := timestamp()

	pbMeta := map[string]string{
		"type":      KindPlaybook,
		"task":      task,
		"timestamp": ts,
		"success":   success,
	}
	if err := s.add(ctx, colPlaybooks, id+"_playbook", playbook, pbMeta); err != nil {
		return "", fmt.Errorf("recording playbook: %w", err)
	}

	resJSON, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding execution result: %w", err)
	}
	resMeta := map[string]string{
		"type":      KindExecResult,
		"task":      task,
		"timestamp": ts,
		"success":   success,
	}
	if err := s.add(ctx, colResults, id+"_result", string(resJSON), resMeta); err != nil {
		return "", fmt.Errorf("recording execution result: %w", err)
	}

	return id, nil
}

// QuerySimilar searches the interactions and playbooks partitions for entries
// semantically close to text, merged and re-sorted ascending by distance,
// truncated to limit. Read errors degrade to an empty result.
func (s *Store) QuerySimilar(ctx context.Context, text string, limit int) []Record {
	if limit <= 0 || text == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var merged []Record
	merged = append(merged, s.queryCollection(ctx, colInteractions, "interaction", text, limit, nil)...)
	merged = append(merged, s.queryCollection(ctx, colPlaybooks, "playbook", text, limit, nil)...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Relevance < merged[j].Relevance
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// SuccessfulPlaybooks returns up to limit previously-successful playbooks
// similar to text, most similar first.
func (s *Store) SuccessfulPlaybooks(ctx context.Context, text string, limit int) []Record {
	if limit <= 0 || text == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.queryCollection(ctx, colPlaybooks, "playbook", text, limit, map[string]string{"success": "true"})
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Relevance < records[j].Relevance
	})
	return records
}

// queryCollection runs one similarity query, converting chromem similarity
// (higher = closer) into a distance (lower = closer). Callers hold the lock.
func (s *Store) queryCollection(ctx context.Context, name, kind, text string, limit int, where map[string]string) []Record {
	col, ok := s.cols[name]
	if !ok {
		return nil
	}

	// chromem rejects nResults greater than the number of candidate
	// documents, so cap against the filtered count.
	n := limit
	if where != nil {
		if filtered := s.countWhere(ctx, name, where); filtered < n {
			n = filtered
		}
	} else if c := col.Count(); c < n {
		n = c
	}
	if n == 0 {
		return nil
	}

	results, err := col.Query(ctx, text, n, where, nil)
	if err != nil {
		s.logger.Warn("context query failed, degrading to empty result",
			zap.String("collection", name),
			zap.Error(err),
		)
		return nil
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		records = append(records, Record{
			ID:        r.ID,
			Kind:      kind,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Relevance: 1 - float64(r.Similarity),
		})
	}
	return records
}

// countWhere counts documents matching a metadata filter by scanning every
// document. Collections here are per-user and small.
func (s *Store) countWhere(ctx context.Context, name string, where map[string]string) int {
	all := s.allRecords(ctx, name, "")
	count := 0
	for _, r := range all {
		match := true
		for k, v := range where {
			if r.Metadata[k] != v {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

// Recent returns the newest entries of the given interaction kind, newest
// first. The underlying storage is insertion-order-agnostic, so ordering is
// recovered from timestamp metadata. Errors degrade to an empty result.
func (s *Store) Recent(ctx context.Context, kind string, limit int) []Record {
	if limit <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.allRecords(ctx, colInteractions, kind)

	sort.SliceStable(all, func(i, j int) bool {
		return parseTimestamp(all[i].Metadata["timestamp"]).After(parseTimestamp(all[j].Metadata["timestamp"]))
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// allRecords fetches every document of a collection, optionally filtered by
// interaction kind. chromem exposes no enumeration, so this queries with
// nResults equal to the collection size. Callers hold the lock.
func (s *Store) allRecords(ctx context.Context, name, kind string) []Record {
	col, ok := s.cols[name]
	if !ok {
		return nil
	}
	count := col.Count()
	if count == 0 {
		return nil
	}

	queryText := name
	if kind != "" {
		queryText = kind
	}
	results, err := col.Query(ctx, queryText, count, nil, nil)
	if err != nil {
		s.logger.Warn("context scan failed, degrading to empty result",
			zap.String("collection", name),
			zap.Error(err),
		)
		return nil
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		if kind != "" && r.Metadata["type"] != kind {
			continue
		}
		records = append(records, Record{
			ID:       r.ID,
			Kind:     r.Metadata["type"],
			Content:  r.Content,
			Metadata: r.Metadata,
		})
	}
	return records
}

// Reset destructively clears the named partition, or every partition when
// name is empty, and reinitializes them.
func (s *Store) Reset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := partitions
	if name != "" {
		if _, ok := s.cols[name]; !ok {
			return fmt.Errorf("unknown partition %q", name)
		}
		targets = []string{name}
	}

	for _, t := range targets {
		if err := s.db.DeleteCollection(t); err != nil {
			return fmt.Errorf("deleting collection %s: %w", t, err)
		}
		col, err := s.db.GetOrCreateCollection(t, nil, s.embed)
		if err != nil {
			return fmt.Errorf("recreating collection %s: %w", t, err)
		}
		s.cols[t] = col
	}
	return nil
}

// Stats returns per-partition entry counts.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int, len(s.cols))
	for name, col := range s.cols {
		stats[name] = col.Count()
	}
	return stats
}

func (s *Store) add(ctx context.Context, name, id, content string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.cols[name]
	if !ok {
		return fmt.Errorf("unknown partition %q", name)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	})
}

func baseMetadata(kind string) map[string]string {
	return map[string]string{
		"type":      kind,
		"timestamp": timestamp(),
	}
}

func timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
