package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"server/internal/infra"
)

const hfDefaultModel = "stabilityai/stable-diffusion-xl-base-1.0"

// HFInferenceEngine calls the hosted inference API directly: one POST per
// output image, response body is the rendered image. A 503 means the model
// is still loading on the remote side and is treated as transient.
type HFInferenceEngine struct {
	apiToken   string
	baseURL    string
	model      string
	sampling   sampling
	retry      RetryPolicy
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
}

// NewHFInferenceEngine constructs the engine; api_token is required.
func NewHFInferenceEngine(cfg Config, logger *infra.Logger) (*HFInferenceEngine, error) {
	token, err := cfg.requireString(KeyAPIToken)
	if err != nil {
		return nil, err
	}
	retry := DefaultRetryPolicy()
	retry.MaxRetries = uint64(cfg.integer(KeyMaxRetries, int(retry.MaxRetries)))
	return &HFInferenceEngine{
		apiToken:   token,
		baseURL:    strings.TrimRight(cfg.str(KeyBaseURL, "https://api-inference.huggingface.co"), "/"),
		model:      cfg.str(KeyModel, hfDefaultModel),
		sampling:   samplingFromConfig(cfg),
		retry:      retry,
		httpClient: &http.Client{Timeout: cfg.duration(KeyRequestTimeout, 60*time.Second)},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		logger:     ensureLogger(logger),
	}, nil
}

type hfParameters struct {
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Strength          float64 `json:"strength,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	Seed              int     `json:"seed,omitempty"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Image      string       `json:"image,omitempty"`
	Parameters hfParameters `json:"parameters"`
}

type hfError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (e *HFInferenceEngine) HealthCheck(ctx context.Context) bool {
	if e.apiToken == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/status/"+e.model, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.apiToken)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (e *HFInferenceEngine) ModelInfo() map[string]string {
	status := "configured"
	if e.apiToken == "" {
		status = "missing_credentials"
	}
	return map[string]string{
		"engine_type": string(EngineHFInference),
		"status":      status,
		"model":       e.model,
		"provider":    "huggingface",
	}
}

func (e *HFInferenceEngine) GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult {
	start := time.Now()

	images := make([]string, 0, e.sampling.NumOutputs)
	for i := 0; i < e.sampling.NumOutputs; i++ {
		payload := hfRequest{
			Inputs: req.PositivePrompt,
			Image:  conditioningDataURI(req.Primary),
			Parameters: hfParameters{
				NegativePrompt:    req.NegativePrompt,
				NumInferenceSteps: e.sampling.InferenceSteps,
				GuidanceScale:     e.sampling.GuidanceScale,
				Strength:          e.sampling.Strength,
				Width:             e.sampling.Resolution,
				Height:            e.sampling.Resolution,
				Seed:              int(proceduralSeed(req.RequestID, i)),
			},
		}
		var data []byte
		err := e.retry.Do(ctx, func() error {
			if err := e.limiter.Wait(ctx); err != nil {
				return Permanent(err)
			}
			var callErr error
			data, callErr = e.invoke(ctx, payload)
			return callErr
		})
		if err != nil {
			return Failure(EngineHFInference, fmt.Sprintf("hf inference: %s", safeErr(err)))
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	e.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", e.model).
		Int("outputs", len(images)).
		Msg("hf: inference succeeded")

	return &GenerationResult{
		Success:          true,
		Images:           images,
		InferenceSeconds: time.Since(start).Seconds(),
		EngineUsed:       string(EngineHFInference),
	}
}

var _ Engine = (*HFInferenceEngine)(nil)

func (e *HFInferenceEngine) invoke(ctx context.Context, payload hfRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Permanent(fmt.Errorf("encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/models/"+e.model, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiToken)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		// Model cold start; the API reports an estimated wait.
		var detail hfError
		_ = json.Unmarshal(raw, &detail)
		return nil, fmt.Errorf("%w: model loading (est %.0fs)", ErrEngineUnavailable, detail.EstimatedTime)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		var detail hfError
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil && detail.Error != "" {
			return nil, Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, detail.Error))
		}
		return nil, Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	if len(raw) == 0 {
		return nil, Permanent(fmt.Errorf("empty image response"))
	}
	return raw, nil
}
