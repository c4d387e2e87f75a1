package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	userAgent          = "market-backend/1.0"
)

// HTTPOptions configures an HTTP-backed adapter. Zero values pick the provider defaults.
type HTTPOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

func (o HTTPOptions) withDefaults(baseURL string) HTTPOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultHTTPTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

func newHTTPClient(o HTTPOptions) *resty.Client {
	return resty.New().
		SetBaseURL(o.BaseURL).
		SetTimeout(o.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})
}

// getJSON performs req and decodes the body into out. found is false on 404.
func getJSON(ctx context.Context, req *resty.Request, path string, out any) (found bool, err error) {
	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		return false, fmt.Errorf("request %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.StatusCode() == http.StatusTooManyRequests:
		return false, ErrRateLimited
	case resp.IsError():
		return false, fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
