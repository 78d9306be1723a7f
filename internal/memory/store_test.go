package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEmbedding is a deterministic local embedding: a normalized hashed
// bag-of-words. Identical texts embed identically; overlapping texts are
// closer than disjoint ones. Keeps tests independent of a model server.
func testEmbedding() chromem.EmbeddingFunc {
	const dims = 64
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%dims]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
		return vec, nil
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), false, testEmbedding(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRecordInteractionAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordInteraction(ctx, KindUserRequest, "install docker on web servers", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.RecordInteraction(ctx, KindUserRequest, "check disk usage", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.RecordInteraction(ctx, KindTaskResult, "done", nil)
	require.NoError(t, err)

	recent := s.Recent(ctx, KindUserRequest, 10)
	require.Len(t, recent, 2, "task_result entries must be filtered out")
	assert.Equal(t, "check disk usage", recent[0].Content, "newest first")
	assert.Equal(t, "install docker on web servers", recent[1].Content)

	limited := s.Recent(ctx, KindUserRequest, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "check disk usage", limited[0].Content)
}

func TestQuerySimilarLimitAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tasks := []string{
		"install nginx on web servers",
		"restart nginx service",
		"rotate postgres credentials",
		"upgrade kernel on db hosts",
	}
	for _, task := range tasks {
		_, err := s.RecordInteraction(ctx, KindUserRequest, task, nil)
		require.NoError(t, err)
	}
	_, err := s.RecordExecution(ctx, "install nginx on web servers", "---\n- hosts: web\n  tasks: []", ExecutionOutcome{Success: true})
	require.NoError(t, err)

	limit := 3
	records := s.QuerySimilar(ctx, "install nginx", limit)
	require.NotEmpty(t, records)
	assert.LessOrEqual(t, len(records), limit)

	for i := 1; i < len(records); i++ {
		assert.LessOrEqual(t, records[i-1].Relevance, records[i].Relevance,
			"relevance must be ascending (lower = more similar)")
	}
}

func TestSuccessfulPlaybooksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := "install nginx on web servers"
	playbook := "---\n- hosts: webservers\n  tasks:\n    - name: Install nginx\n      apt:\n        name: nginx"

	id, err := s.RecordExecution(ctx, task, playbook, ExecutionOutcome{Success: true, ReturnCode: 0, Stdout: "ok"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// A failed execution for an unrelated task must not appear.
	_, err = s.RecordExecution(ctx, "break everything", "---\n- hosts: all\n  tasks: []", ExecutionOutcome{Success: false, ReturnCode: 2})
	require.NoError(t, err)

	// Querying with the playbook's own task text must surface it.
	records := s.SuccessfulPlaybooks(ctx, task, 3)
	require.NotEmpty(t, records, "stored successful playbook must be retrievable")
	assert.Equal(t, id+"_playbook", records[0].ID)
	assert.Equal(t, playbook, records[0].Content)
	for _, r := range records {
		assert.Equal(t, "true", r.Metadata["success"])
	}
}

func TestRecordExecutionCorrelatedPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordExecution(ctx, "reboot app tier", "---\n- hosts: app\n  tasks: []", ExecutionOutcome{
		Success:    false,
		Stderr:     "unreachable",
		ReturnCode: 4,
	})
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats["playbooks"])
	assert.Equal(t, 1, stats["results"])

	results := s.allRecords(ctx, "results", "")
	require.Len(t, results, 1)
	assert.Equal(t, id+"_result", results[0].ID)
	assert.Contains(t, results[0].Content, `"returncode": 4`)
	assert.Equal(t, "false", results[0].Metadata["success"])
}

func TestQuerySimilarEmptyStore(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.QuerySimilar(context.Background(), "anything", 5))
	assert.Empty(t, s.Recent(context.Background(), KindUserRequest, 5))
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordInteraction(ctx, KindUserRequest, "task one", nil)
	require.NoError(t, err)
	_, err = s.RecordExecution(ctx, "task one", "---\n- hosts: all\n  tasks: []", ExecutionOutcome{Success: true})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "interactions"))
	stats := s.Stats()
	assert.Equal(t, 0, stats["interactions"])
	assert.Equal(t, 1, stats["playbooks"], "other partitions untouched")

	require.NoError(t, s.Reset(ctx, ""))
	for name, count := range s.Stats() {
		assert.Zero(t, count, "partition %s should be empty after full reset", name)
	}

	assert.Error(t, s.Reset(ctx, "nope"))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir, false, testEmbedding(), zap.NewNop())
	require.NoError(t, err)
	_, err = s.RecordInteraction(ctx, KindUserRequest, "patch the fleet", nil)
	require.NoError(t, err)

	reopened, err := New(dir, false, testEmbedding(), zap.NewNop())
	require.NoError(t, err)
	recent := reopened.Recent(ctx, KindUserRequest, 5)
	require.Len(t, recent, 1)
	assert.Equal(t, "patch the fleet", recent[0].Content)
}
