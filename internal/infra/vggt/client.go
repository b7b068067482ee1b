// Package vggt is the HTTP adapter for the externally served VGGT
// reconstruction model. The model itself (weights, attention kernels,
// GPU placement) lives behind the serving endpoint; this client only
// ships frame batches to it and decodes the predictions.
package vggt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ricardoamartinez/vggt/internal/domain/port"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}
}

// Predict uploads one batch of frame images as a multipart request and
// returns the model's predictions for it. Batches are independent; the
// caller owns ordering and concatenation.
func (c *Client) Predict(ctx context.Context, framePaths []string) (*port.BatchPrediction, error) {
	if len(framePaths) == 0 {
		return nil, fmt.Errorf("empty frame batch")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeFrames(mw, framePaths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/reconstruct", pr)
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("predict: endpoint returned %d: %s", resp.StatusCode, body)
	}

	var pred port.BatchPrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	// The server reports pure model time; fall back to wall clock if it
	// omits the field.
	if pred.InferenceSeconds == 0 {
		pred.InferenceSeconds = time.Since(start).Seconds()
	}
	if pred.FrameCount == 0 {
		pred.FrameCount = len(framePaths)
	}

	c.logger.Debug("batch prediction received",
		zap.Int("frames", pred.FrameCount),
		zap.Float64("inference_seconds", pred.InferenceSeconds),
		zap.String("device", pred.Device),
	)

	return &pred, nil
}

func writeFrames(mw *multipart.Writer, framePaths []string) error {
	defer mw.Close()
	for _, path := range framePaths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open frame %s: %w", path, err)
		}

		part, err := mw.CreateFormFile("frames", filepath.Base(path))
		if err != nil {
			f.Close()
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return fmt.Errorf("copy frame %s: %w", path, err)
		}
		f.Close()
	}
	return nil
}

// Health queries the endpoint's self-description. The worker calls it
// once at startup as a non-fatal reachability check.
func (c *Client) Health(ctx context.Context) (*port.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health: endpoint returned %d", resp.StatusCode)
	}

	var info port.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &info, nil
}
