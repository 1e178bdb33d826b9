package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Client calls Gemini generateContent API
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// GenerateData is an input for text generation
type GenerateData struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	// Key overrides the configured API key if not empty
	Key string
}

// NewClient creates a text generation client
func NewClient(baseURL, key, model string) (*Client, error) {
	res := Client{}
	if baseURL == "" {
		return nil, fmt.Errorf("no url")
	}
	if model == "" {
		return nil, fmt.Errorf("no model")
	}
	var err error
	if res.url, err = url.JoinPath(baseURL, "v1beta", "models", model+":generateContent"); err != nil {
		return nil, fmt.Errorf("can't prepare url from '%s': %w", baseURL, err)
	}
	if key == "" {
		goapp.Log.Warn().Msg("no gemini key, only requests with own key will work")
	}
	res.key = key
	res.timeout = time.Second * 60
	res.httpclient = &http.Client{}
	res.backoff = newNoRetryBackoff
	goapp.Log.Info().Str("model", model).Msg("gemini")
	return &res, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// Generate returns model's answer to the prompt
func (sp *Client) Generate(ctx context.Context, in *GenerateData) (string, error) {
	key := in.Key
	if key == "" {
		key = sp.key
	}
	if key == "" {
		return "", fmt.Errorf("no gemini key")
	}
	b, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: in.Prompt}}}},
		GenerationConfig: generationConfig{Temperature: in.Temperature, MaxOutputTokens: in.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("can't marshal: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.url, bytes.NewReader(b))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", key)
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		var respData generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		res, err := takeText(&respData)
		return res, false, err
	}, sp.backoff())
}

func takeText(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	res := strings.TrimSpace(sb.String())
	if res == "" {
		return "", fmt.Errorf("empty response, finish reason '%s'", resp.Candidates[0].FinishReason)
	}
	return res, nil
}

// generation is paid per call, failures are reported to the caller as is
func newNoRetryBackoff() backoff.BackOff {
	return &backoff.StopBackOff{}
}
