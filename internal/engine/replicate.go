package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"server/internal/infra"
)

// Model version presets for the Replicate-backed variants. STATE_OF_THE_ART
// points at the interior-design finetune; FLUX_WORKING at the flux img2img
// deployment.
const (
	replicateDefaultModel = "stability-ai/sdxl"
	fluxModel             = "black-forest-labs/flux-dev"
	interiorDesignModel   = "adirik/interior-design"
)

// ReplicateEngine drives the hosted predictions API: it creates a prediction
// carrying the prompts plus the primary conditioning image and polls until
// the prediction settles. One instance serves one variant tag (REPLICATE,
// FLUX_WORKING or STATE_OF_THE_ART differ only in model and metadata).
type ReplicateEngine struct {
	tag          EngineType
	apiToken     string
	baseURL      string
	model        string
	sampling     sampling
	retry        RetryPolicy
	pollInterval time.Duration
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *infra.Logger
}

// NewReplicateEngine constructs a hosted engine for the given variant tag.
// The api_token key is required; everything else has defaults.
func NewReplicateEngine(tag EngineType, cfg Config, logger *infra.Logger) (*ReplicateEngine, error) {
	token, err := cfg.requireString(KeyAPIToken)
	if err != nil {
		return nil, err
	}
	model := cfg.str(KeyModel, "")
	if model == "" {
		switch tag {
		case EngineFluxWorking:
			model = fluxModel
		case EngineStateOfTheArt:
			model = interiorDesignModel
		default:
			model = replicateDefaultModel
		}
	}
	timeout := cfg.duration(KeyRequestTimeout, 60*time.Second)
	retry := DefaultRetryPolicy()
	retry.MaxRetries = uint64(cfg.integer(KeyMaxRetries, int(retry.MaxRetries)))
	return &ReplicateEngine{
		tag:          tag,
		apiToken:     token,
		baseURL:      strings.TrimRight(cfg.str(KeyBaseURL, "https://api.replicate.com/v1"), "/"),
		model:        model,
		sampling:     samplingFromConfig(cfg),
		retry:        retry,
		pollInterval: 2 * time.Second,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Every(time.Second), 2),
		logger:       ensureLogger(logger),
	}, nil
}

type predictionInput struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Image             string  `json:"image,omitempty"`
	NumOutputs        int     `json:"num_outputs,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	PromptStrength    float64 `json:"prompt_strength,omitempty"`
	ConditioningScale float64 `json:"controlnet_conditioning_scale,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Model   string          `json:"model,omitempty"`
	Input   predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

func (e *ReplicateEngine) HealthCheck(ctx context.Context) bool {
	if e.apiToken == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/account", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Token "+e.apiToken)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (e *ReplicateEngine) ModelInfo() map[string]string {
	status := "configured"
	if e.apiToken == "" {
		status = "missing_credentials"
	}
	return map[string]string{
		"engine_type": string(e.tag),
		"status":      status,
		"model":       e.model,
		"provider":    "replicate",
	}
}

func (e *ReplicateEngine) GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult {
	start := time.Now()

	payload := predictionRequest{
		Model: e.model,
		Input: predictionInput{
			Prompt:            req.PositivePrompt,
			NegativePrompt:    req.NegativePrompt,
			Image:             conditioningDataURI(req.Primary),
			NumOutputs:        e.sampling.NumOutputs,
			NumInferenceSteps: e.sampling.InferenceSteps,
			GuidanceScale:     e.sampling.GuidanceScale,
			PromptStrength:    e.sampling.Strength,
			ConditioningScale: e.sampling.ConditioningScale,
			Width:             e.sampling.Resolution,
			Height:            e.sampling.Resolution,
		},
	}

	var created predictionResponse
	err := e.retry.Do(ctx, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		return e.createPrediction(ctx, payload, &created)
	})
	if err != nil {
		return Failure(e.tag, fmt.Sprintf("replicate: create prediction failed: %s", safeErr(err)))
	}

	final, err := e.pollPrediction(ctx, created)
	if err != nil {
		return Failure(e.tag, fmt.Sprintf("replicate: %s", safeErr(err)))
	}

	images, err := e.downloadOutputs(ctx, final.Output)
	if err != nil {
		return Failure(e.tag, fmt.Sprintf("replicate: %s", safeErr(err)))
	}
	if len(images) == 0 {
		return Failure(e.tag, "replicate: prediction returned no images")
	}

	e.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", e.model).
		Int("outputs", len(images)).
		Msg("replicate: prediction succeeded")

	return &GenerationResult{
		Success:          true,
		Images:           images,
		InferenceSeconds: time.Since(start).Seconds(),
		EngineUsed:       string(e.tag),
	}
}

var _ Engine = (*ReplicateEngine)(nil)

func (e *ReplicateEngine) createPrediction(ctx context.Context, payload predictionRequest, out *predictionResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+e.apiToken)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// pollPrediction waits for the prediction to settle. The caller's context
// deadline bounds the loop; a created-but-finished response skips polling.
func (e *ReplicateEngine) pollPrediction(ctx context.Context, created predictionResponse) (*predictionResponse, error) {
	current := created
	for {
		switch current.Status {
		case "succeeded":
			return &current, nil
		case "failed", "canceled":
			msg := strings.TrimSpace(current.Error)
			if msg == "" {
				msg = "prediction " + current.Status
			}
			return nil, errors.New(msg)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("prediction timed out: %w", ctx.Err())
		case <-time.After(e.pollInterval):
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/predictions/"+current.ID, nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Token "+e.apiToken)
		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("poll status %d", resp.StatusCode)
		}
		var next predictionResponse
		if err := json.Unmarshal(raw, &next); err != nil {
			return nil, fmt.Errorf("decode poll response: %w", err)
		}
		current = next
	}
}

func (e *ReplicateEngine) downloadOutputs(ctx context.Context, urls []string) ([]string, error) {
	images := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			continue
		}
		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("download output: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("download output status %d", resp.StatusCode)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}

// conditioningDataURI inlines the primary conditioning image for JSON
// transport. Hosted APIs accept data URIs in place of upload URLs.
func conditioningDataURI(ci *ConditioningImage) string {
	if ci == nil || len(ci.Image) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(ci.Image)
}

// safeErr normalizes error text for inclusion in a user-visible result.
func safeErr(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
