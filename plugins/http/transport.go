// Package http is the resty-based integration transport.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/autoflow/runtime"
)

var _ runtime.Transport = (*Transport)(nil)

// Config holds the transport configuration with declarative tags
type Config struct {
	Timeout   time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	Debug     bool          `yaml:"debug" default:"false"`
	UserAgent string        `yaml:"user_agent" default:"autoflow/1.0"`
}

// Transport performs integration calls. Retries belong to the engine's
// resilience layer, so resty's own retry support stays disabled.
type Transport struct {
	Config Config
	client *resty.Client
	l      *slog.Logger
}

func NewTransport(cfg Config, l *slog.Logger) *Transport {
	if l == nil {
		l = slog.Default()
	}
	t := &Transport{Config: cfg, l: l}
	t.client = resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetLogger(restyLogger{l}).
		SetDebug(cfg.Debug)
	return t
}

// Do executes req. Non-2xx responses and network failures come back as
// transient FlowErrors; the decoded body of an error response is attached
// as metadata.
func (t *Transport) Do(ctx context.Context, req *runtime.Request) (*runtime.Response, error) {
	r := t.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)

	if req.Body != nil {
		if req.Form {
			body, ok := req.Body.(map[string]any)
			if !ok {
				return nil, runtime.NewValidationError(runtime.ErrorCodeInvalidStepConfig,
					fmt.Sprintf("form body must be an object, got %T", req.Body), nil)
			}
			r.SetFormData(flattenToFormData(body, ""))
		} else {
			r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
		}
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, runtime.NewCancelledError(err)
		}
		return nil, runtime.NewTransientError(runtime.ErrorCodeNetwork,
			fmt.Sprintf("%s request failed", req.Method), err)
	}

	out := &runtime.Response{
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header(),
		Body:       decodeBody(resp.Body()),
		Raw:        resp.Body(),
	}

	if !resp.IsSuccess() {
		t.l.WarnContext(ctx, fmt.Sprintf("Integration returned %s", resp.Status()),
			"method", req.Method,
			"status_code", out.StatusCode)
		return out, runtime.NewTransientError(runtime.ErrorCodeHTTPStatus,
			fmt.Sprintf("%s request returned status %d", req.Method, out.StatusCode), nil).
			WithMeta("status_code", out.StatusCode).
			WithMeta("body", out.Body)
	}
	return out, nil
}

// Shutdown releases idle connections.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.client.GetClient().CloseIdleConnections()
	return nil
}

// decodeBody returns the parsed JSON document, the raw text for non-JSON
// bodies, or nil for an empty body.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return string(raw)
	}
	return parsed.Data()
}

// flattenToFormData converts nested objects to bracket notation:
// {"metadata": {"id": 1}} becomes "metadata[id]=1".
func flattenToFormData(input map[string]any, prefix string) map[string]string {
	result := make(map[string]string)
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}
		flattenValue(result, key, input[k])
	}
	return result
}

func flattenValue(result map[string]string, key string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for nk, nv := range flattenToFormData(val, key) {
			result[nk] = nv
		}
	case []any:
		for i, item := range val {
			flattenValue(result, key+"["+strconv.Itoa(i)+"]", item)
		}
	case nil:
	default:
		result[key] = runtime.Stringify(val)
	}
}

// restyLogger routes resty's diagnostics into slog.
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) {
	r.l.Error(fmt.Sprintf("resty: "+format, v...))
}

func (r restyLogger) Warnf(format string, v ...any) {
	r.l.Warn(fmt.Sprintf("resty: "+format, v...))
}

func (r restyLogger) Debugf(format string, v ...any) {
	r.l.Debug(fmt.Sprintf("resty: "+format, v...))
}
