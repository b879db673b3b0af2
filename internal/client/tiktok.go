package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

// TikTokClient posts videos through the Content Posting API. Rate
// limiting of /video/init/ is the caller's responsibility; this client
// only performs the calls.
type TikTokClient struct {
	httpClient    *http.Client
	uploadClient  *http.Client
	baseURL       string
	accessToken   string
	chunkSize     int64
	maxCaptionLen int
}

// CreatorInfo is the subset of creator_info/query used before posting.
type CreatorInfo struct {
	Username            string   `json:"creator_username"`
	PrivacyLevelOptions []string `json:"privacy_level_options"`
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewTikTokClient creates a new Content Posting API client
func NewTikTokClient(cfg *config.TikTokConfig) *TikTokClient {
	return &TikTokClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		uploadClient: &http.Client{
			Timeout: time.Duration(cfg.UploadTimeoutSec) * time.Second,
		},
		baseURL:       cfg.BaseURL,
		accessToken:   cfg.AccessToken,
		chunkSize:     cfg.ChunkSize,
		maxCaptionLen: cfg.MaxCaptionLen,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *TikTokClient) IsConfigured() bool {
	return c.accessToken != ""
}

// call makes a JSON API request and decodes the standard envelope.
func (c *TikTokClient) call(ctx context.Context, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return pipeline.Terminal("tiktok", fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return pipeline.Terminal("tiktok", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.Transient("tiktok", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Transient("tiktok", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return classifyHTTP("tiktok", resp.StatusCode, respBody)
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return pipeline.Terminal("tiktok", fmt.Errorf("unmarshal response: %w", err))
	}
	if env.Error.Code != "" && env.Error.Code != "ok" {
		err := fmt.Errorf("API error: %s - %s", env.Error.Code, env.Error.Message)
		switch env.Error.Code {
		case "rate_limit_exceeded":
			return pipeline.Transient("tiktok", err)
		case "access_token_invalid", "scope_not_authorized":
			return pipeline.Auth("tiktok", err)
		default:
			return pipeline.Terminal("tiktok", err)
		}
	}
	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pipeline.Terminal("tiktok", fmt.Errorf("decode data: %w", err))
		}
	}
	return nil
}

// QueryCreatorInfo fetches creator details, including the privacy levels
// the account may post with.
func (c *TikTokClient) QueryCreatorInfo(ctx context.Context) (*CreatorInfo, error) {
	var info CreatorInfo
	if err := c.call(ctx, "/v2/post/publish/creator_info/query/", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PostVideo runs the init -> upload -> status sequence for one video and
// returns the publish info. The caption is truncated to the API limit.
func (c *TikTokClient) PostVideo(ctx context.Context, videoPath, caption, privacyLevel string) (*model.PublishInfo, error) {
	fi, err := os.Stat(videoPath)
	if err != nil {
		return nil, pipeline.Terminal("tiktok", fmt.Errorf("video file: %w", err))
	}
	videoSize := fi.Size()
	totalChunks := (videoSize + c.chunkSize - 1) / c.chunkSize

	if len(caption) > c.maxCaptionLen {
		caption = caption[:c.maxCaptionLen]
	}

	initReq := map[string]any{
		"post_info": map[string]any{
			"privacy_level": privacyLevel,
			"title":         caption,
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        videoSize,
			"chunk_size":        c.chunkSize,
			"total_chunk_count": totalChunks,
		},
	}

	var initResp struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	}
	if err := c.call(ctx, "/v2/post/publish/video/init/", initReq, &initResp); err != nil {
		return nil, err
	}

	if err := c.uploadFile(ctx, initResp.UploadURL, videoPath, videoSize); err != nil {
		return nil, err
	}

	status, err := c.FetchStatus(ctx, initResp.PublishID)
	if err != nil {
		// The video is uploaded; a failed status poll should not undo that.
		status = "unknown"
	}

	return &model.PublishInfo{
		PublishID: initResp.PublishID,
		Status:    status,
		Caption:   caption,
	}, nil
}

// uploadFile PUTs the whole video in one range request. Multi-chunk
// upload would split the file into chunkSize ranges; single-chunk covers
// the fixed-length videos this pipeline produces.
func (c *TikTokClient) uploadFile(ctx context.Context, uploadURL, videoPath string, videoSize int64) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return pipeline.Terminal("tiktok", fmt.Errorf("open video: %w", err))
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return pipeline.Terminal("tiktok", fmt.Errorf("create upload request: %w", err))
	}
	req.ContentLength = videoSize
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", videoSize-1, videoSize))

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return pipeline.Transient("tiktok", fmt.Errorf("upload video: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return pipeline.Transient("tiktok", fmt.Errorf("upload failed with status %d", resp.StatusCode))
	}
	return nil
}

// FetchStatus polls the publish status of a posted video.
func (c *TikTokClient) FetchStatus(ctx context.Context, publishID string) (string, error) {
	var statusResp struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, "/v2/post/publish/status/fetch/", map[string]string{"publish_id": publishID}, &statusResp)
	if err != nil {
		return "", err
	}
	return statusResp.Status, nil
}
