package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

func tiktokClient(t *testing.T, handler http.Handler) *TikTokClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTikTokClient(&config.TikTokConfig{
		AccessToken:      "test-token",
		BaseURL:          srv.URL,
		PrivacyLevel:     "SELF_ONLY",
		ChunkSize:        10 * 1024 * 1024,
		MaxCaptionLen:    2200,
		UploadTimeoutSec: 60,
	})
}

func writeTestVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestPostVideoSequence(t *testing.T) {
	var initBody map[string]any
	var uploadRange string
	var uploadedBytes int

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&initBody))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"publish_id": "pub-42",
				"upload_url": "http://" + r.Host + "/upload",
			},
			"error": map[string]string{"code": "ok"},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		uploadRange = r.Header.Get("Content-Range")
		body, _ := io.ReadAll(r.Body)
		uploadedBytes = len(body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/post/publish/status/fetch/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]string{"status": "PROCESSING_DOWNLOAD"},
			"error": map[string]string{"code": "ok"},
		})
	})

	c := tiktokClient(t, mux)
	video := writeTestVideo(t, 1024)

	info, err := c.PostVideo(context.Background(), video, "Can you solve it?", "SELF_ONLY")
	require.NoError(t, err)

	assert.Equal(t, "pub-42", info.PublishID)
	assert.Equal(t, "PROCESSING_DOWNLOAD", info.Status)
	assert.Equal(t, "Can you solve it?", info.Caption)

	post := initBody["post_info"].(map[string]any)
	assert.Equal(t, "SELF_ONLY", post["privacy_level"])
	assert.Equal(t, "Can you solve it?", post["title"])
	source := initBody["source_info"].(map[string]any)
	assert.Equal(t, "FILE_UPLOAD", source["source"])
	assert.Equal(t, float64(1024), source["video_size"])
	assert.Equal(t, float64(1), source["total_chunk_count"])

	assert.Equal(t, "bytes 0-1023/1024", uploadRange)
	assert.Equal(t, 1024, uploadedBytes)
}

func TestPostVideoTruncatesCaption(t *testing.T) {
	mux := http.NewServeMux()
	var title string
	mux.HandleFunc("/v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		title = body["post_info"].(map[string]any)["title"].(string)
		json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]string{"publish_id": "p", "upload_url": "http://" + r.Host + "/upload"},
			"error": map[string]string{"code": "ok"},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v2/post/publish/status/fetch/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"status": "ok"}, "error": map[string]string{"code": "ok"}})
	})

	c := tiktokClient(t, mux)
	long := strings.Repeat("x", 5000)

	info, err := c.PostVideo(context.Background(), writeTestVideo(t, 16), long, "SELF_ONLY")
	require.NoError(t, err)
	assert.Len(t, title, 2200)
	assert.Len(t, info.Caption, 2200)
}

func TestPostVideoStatusPollFailureIsNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]string{"publish_id": "pub-1", "upload_url": "http://" + r.Host + "/upload"},
			"error": map[string]string{"code": "ok"},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v2/post/publish/status/fetch/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	c := tiktokClient(t, mux)
	info, err := c.PostVideo(context.Background(), writeTestVideo(t, 16), "caption", "SELF_ONLY")
	require.NoError(t, err, "the video is posted; a failed poll must not fail the stage")
	assert.Equal(t, "unknown", info.Status)
}

func TestAPIErrorClassification(t *testing.T) {
	cases := []struct {
		code string
		want pipeline.Kind
	}{
		{"rate_limit_exceeded", pipeline.KindTransient},
		{"access_token_invalid", pipeline.KindAuth},
		{"scope_not_authorized", pipeline.KindAuth},
		{"spam_risk_too_many_posts", pipeline.KindTerminal},
	}
	for _, tc := range cases {
		c := tiktokClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": tc.code, "message": "m"},
			})
		}))
		_, err := c.QueryCreatorInfo(context.Background())
		require.Error(t, err, tc.code)
		assert.Equal(t, tc.want, pipeline.Classify(err), tc.code)
	}
}

func TestQueryCreatorInfo(t *testing.T) {
	c := tiktokClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/post/publish/creator_info/query/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"creator_username":      "puzzlechannel",
				"privacy_level_options": []string{"SELF_ONLY", "PUBLIC_TO_EVERYONE"},
			},
			"error": map[string]string{"code": "ok"},
		})
	}))

	info, err := c.QueryCreatorInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "puzzlechannel", info.Username)
	assert.Contains(t, info.PrivacyLevelOptions, "PUBLIC_TO_EVERYONE")
}
