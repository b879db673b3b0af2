package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

const (
	driveUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&supportsAllDrives=true"
	driveScope     = "https://www.googleapis.com/auth/drive.file"
)

// DriveClient implements StorageClient for a shared Google Drive folder,
// authenticating as a service account via a signed JWT assertion.
type DriveClient struct {
	httpClient *http.Client
	folderID   string
	creds      serviceAccountKey

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// serviceAccountKey is the relevant subset of a Google service-account
// credentials.json.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// NewDriveClient loads the service-account key and prepares the client
func NewDriveClient(cfg *config.DriveConfig) (*DriveClient, error) {
	if cfg.FolderID == "" || cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("drive configuration incomplete")
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("decode drive credentials: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("drive credentials missing client_email or private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &DriveClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		folderID:   cfg.FolderID,
		creds:      key,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *DriveClient) IsConfigured() bool {
	return c.folderID != "" && c.creds.ClientEmail != ""
}

// token returns a cached access token, exchanging a fresh RS256-signed
// assertion when the cached one is near expiry.
func (c *DriveClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.creds.PrivateKey))
	if err != nil {
		return "", pipeline.Auth("drive", fmt.Errorf("parse private key: %w", err))
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.creds.ClientEmail,
		"scope": driveScope,
		"aud":   c.creds.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(rsaKey)
	if err != nil {
		return "", pipeline.Auth("drive", fmt.Errorf("sign assertion: %w", err))
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("create token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pipeline.Transient("drive", fmt.Errorf("token exchange: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipeline.Transient("drive", fmt.Errorf("read token response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP("drive", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", pipeline.Auth("drive", fmt.Errorf("invalid token response"))
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// UploadFile uploads the file into the configured folder via a
// multipart/related request and returns the Drive file id.
func (c *DriveClient) UploadFile(ctx context.Context, path string) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("open file: %w", err))
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("create metadata part: %w", err))
	}
	meta := map[string]any{
		"name":    filepath.Base(path),
		"parents": []string{c.folderID},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("encode metadata: %w", err))
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", contentTypeFor(path))
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("create media part: %w", err))
	}
	if _, err := io.Copy(mediaPart, f); err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("read file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("finalize body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, driveUploadURL, &buf)
	if err != nil {
		return "", pipeline.Terminal("drive", fmt.Errorf("create upload request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pipeline.Transient("drive", fmt.Errorf("upload: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipeline.Transient("drive", fmt.Errorf("read upload response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP("drive", resp.StatusCode, body)
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &file); err != nil || file.ID == "" {
		return "", pipeline.Terminal("drive", fmt.Errorf("invalid upload response"))
	}
	return file.ID, nil
}
