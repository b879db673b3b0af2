// End-to-end batch runs against a stubbed LLM endpoint: real generator,
// renderer, store and runner, with only the network and ffmpeg replaced.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshorts/pipeline/internal/asset"
	"github.com/gridshorts/pipeline/internal/client"
	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/generator"
	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/pipeline"
	"github.com/gridshorts/pipeline/internal/render"
)

// llmStub serves chat completions with canned puzzle JSON, one response
// per request in order.
type llmStub struct {
	responses []string
	calls     int
}

func (s *llmStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content := s.responses[s.calls%len(s.responses)]
		s.calls++
		json.NewEncoder(w).Encode(map[string]any{
			"id": fmt.Sprintf("cmpl-%d", s.calls),
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}
}

func puzzleJSON(answer string) string {
	doc := map[string]any{
		"id":            "whatever",
		"puzzle_type":   "matrix_reasoning",
		"difficulty":    4,
		"question_text": "Which one completes the pattern?",
		"grid_logic":    "row1: [circle, square, triangle]; row2: [square, triangle, circle]; row3: [triangle, circle, ?]; rule: shapes rotate left",
		"options":       []string{"A: circle", "B: square", "C: triangle", "D: diamond", "E: star"},
		"correct_answer": answer,
		"explanation":   "The shapes rotate one position left in each row.",
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func newBatchRunner(t *testing.T, llmURL, outDir string) (*pipeline.Runner, *asset.Store) {
	t.Helper()
	log := logging.NewWithWriters(logging.LevelError, testWriter{t}, testWriter{t})

	gen := generator.New(client.NewOpenAIClient(&config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: llmURL,
		Model:   "gpt-4o-mini",
	}), validator.New())

	store, err := asset.NewStore(outDir)
	require.NoError(t, err)

	exec := pipeline.NewExecutor(pipeline.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, log)

	orch := pipeline.NewOrchestrator(
		gen,
		render.New(&config.ImageConfig{Width: 540, Height: 675}),
		nil, store, nil, nil, nil, exec, log,
		pipeline.Options{SkipVideo: true},
	)
	return pipeline.NewRunner(orch, store, pipeline.NewDifficultyCycler(0, 0), log, 1), store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestBatchEndToEnd(t *testing.T) {
	stub := &llmStub{responses: []string{puzzleJSON("B")}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	outDir := t.TempDir()
	runner, store := newBatchRunner(t, srv.URL, outDir)

	report, err := runner.Run(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, report.Items, 3)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 3, stub.calls)

	for i, item := range report.Items {
		assert.Equal(t, fmt.Sprintf("puzzle_%03d", i+1), item.ID)
		assert.Equal(t, model.ItemCompleted, item.Status)
		assert.FileExists(t, item.ImagePath)
		assert.FileExists(t, item.MetadataPath)
		assert.Empty(t, item.VideoPath)

		meta, err := store.ReadMetadata(item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, meta.Puzzle.ID, "metadata carries the allocated identity")
		assert.Equal(t, "B: square", meta.Puzzle.CorrectAnswer, "label answer normalised before persisting")
	}
}

func TestBatchRecoversFromBadModelOutput(t *testing.T) {
	// Second request returns garbage; only that item should fail.
	stub := &llmStub{responses: []string{
		puzzleJSON("A: circle"),
		"sorry, no puzzle today",
		puzzleJSON("C: triangle"),
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	runner, _ := newBatchRunner(t, srv.URL, t.TempDir())

	report, err := runner.Run(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, model.ItemCompleted, report.Items[0].Status)
	assert.Equal(t, model.ItemFailed, report.Items[1].Status)
	assert.Equal(t, model.ItemCompleted, report.Items[2].Status)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.Failed)
}

func TestBatchContinuesNumberingAcrossRuns(t *testing.T) {
	stub := &llmStub{responses: []string{puzzleJSON("A: circle")}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	outDir := t.TempDir()

	runner, _ := newBatchRunner(t, srv.URL, outDir)
	first, err := runner.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "puzzle_002", first.Items[1].ID)

	runner2, _ := newBatchRunner(t, srv.URL, outDir)
	second, err := runner2.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "puzzle_003", second.Items[0].ID)
}
