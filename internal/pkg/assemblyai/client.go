package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	tapi "github.com/airenas/whispers/internal/pkg/assemblyai/api"
	"github.com/cenkalti/backoff/v4"
)

// Client comunicates with AssemblyAI transcription service
type Client struct {
	httpclient *http.Client
	submitURL  string
	statusURL  string
	key        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
	// job creation is not idempotent, a retry may start a second paid job
	submitBackoff func() backoff.BackOff
}

// NewClient creates a transcription client
func NewClient(baseURL, key string) (*Client, error) {
	res := Client{}
	if baseURL == "" {
		return nil, fmt.Errorf("no url")
	}
	var err error
	if res.submitURL, err = url.JoinPath(baseURL, "v2", "transcript"); err != nil {
		return nil, fmt.Errorf("can't prepare url from '%s': %w", baseURL, err)
	}
	res.statusURL = res.submitURL
	if key == "" {
		goapp.Log.Warn().Msg("no assemblyai key, only requests with own key will work")
	}
	res.key = key
	res.timeout = time.Second * 30
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	res.submitBackoff = newNoRetryBackoff
	return &res, nil
}

type submitRequest struct {
	AudioURL       string `json:"audio_url"`
	LanguageCode   string `json:"language_code,omitempty"`
	SpeakerLabels  bool   `json:"speaker_labels"`
	AutoHighlights bool   `json:"auto_highlights"`
}

// Submit creates a transcription job, returns job ID
func (sp *Client) Submit(ctx context.Context, in *tapi.SubmitData) (string, error) {
	key, err := sp.keyOr(in.Key)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(submitRequest{AudioURL: in.AudioURL, LanguageCode: in.Language,
		SpeakerLabels: true, AutoHighlights: true})
	if err != nil {
		return "", fmt.Errorf("can't marshal: %w", err)
	}
	res, err := goapp.InvokeWithBackoff(ctx, func() (*tapi.StatusData, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.submitURL, bytes.NewReader(b))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		return sp.invoke(req, key)
	}, sp.submitBackoff())
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("can't get ID from response")
	}
	return res.ID, nil
}

// GetStatus return job status by ID
func (sp *Client) GetStatus(ctx context.Context, ID, key string) (*tapi.StatusData, error) {
	key, err := sp.keyOr(key)
	if err != nil {
		return nil, err
	}
	urlStr, err := url.JoinPath(sp.statusURL, ID)
	if err != nil {
		return nil, fmt.Errorf("can't prepare url: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (*tapi.StatusData, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, false, err
		}
		return sp.invoke(req, key)
	}, sp.backoff())
}

func (sp *Client) invoke(req *http.Request, key string) (*tapi.StatusData, bool, error) {
	req.Header.Set("authorization", key)
	resp, err := sp.httpclient.Do(req)
	if err != nil {
		return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
		return nil, goapp.IsRetryableCode(resp.StatusCode), err
	}
	res := &tapi.StatusData{}
	if err = json.NewDecoder(resp.Body).Decode(res); err != nil {
		return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
	}
	return res, false, nil
}

func (sp *Client) keyOr(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	if sp.key == "" {
		return "", fmt.Errorf("no assemblyai key")
	}
	return sp.key, nil
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}

func newNoRetryBackoff() backoff.BackOff {
	return &backoff.StopBackOff{}
}
