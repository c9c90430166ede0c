package blueprint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/platform"
	"github.com/BDNK1/autoflow/runtime/resilience"
)

func (e *StepExecutor) handleAction(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	cfg, err := runtime.DecodeStepConfig[runtime.ActionConfig](step)
	if err != nil {
		return nil, err
	}
	integration := strings.ToLower(strings.TrimSpace(cfg.Integration))
	params, _ := runtime.Interpolate(cfg.Params, execution.Values()).(map[string]any)

	req, err := e.buildRequest(execution, integration, cfg.Method, params)
	if err != nil {
		if fe, ok := runtime.AsFlowError(err); ok {
			fe.WithStep(step.ID).WithIntegration(integration)
		}
		return nil, err
	}

	e.l.InfoContext(execution, fmt.Sprintf("Calling %s.%s", integration, cfg.Method),
		"step_id", step.ID,
		"http_method", req.Method,
		"url", redactQuery(req.URL))

	resp, err := Call(ctx, e.integrations, execution.UserID, integration, cfg.Method,
		func(ctx context.Context) (*runtime.Response, error) {
			return e.transport.Do(ctx, req)
		})
	if err != nil {
		return nil, classifyCallError(err, integration).WithStep(step.ID)
	}

	if cfg.OutputVariable != "" {
		execution.AddValue(cfg.OutputVariable, resp.Body)
	}
	return resp.Body, nil
}

func (e *StepExecutor) buildRequest(execution *runtime.Execution, integration, methodName string, params map[string]any) (*runtime.Request, error) {
	if e.transport == nil {
		return nil, runtime.NewConfigurationError(runtime.ErrorCodeInvalidBlueprint, "no transport configured for action steps", nil)
	}

	creds, ok := execution.Credential(integration)
	if !ok {
		return nil, runtime.NewConfigurationError(runtime.ErrorCodeMissingCredentials,
			fmt.Sprintf("no active credentials for %s", integration), nil)
	}

	rc, err := platform.Resolve(integration, e.catalog, creds)
	if err != nil {
		return nil, runtime.NewConfigurationError(runtime.ErrorCodeMissingCredentials,
			fmt.Sprintf("cannot authenticate to %s", integration), err)
	}
	method, err := rc.Method(methodName)
	if err != nil {
		return nil, runtime.NewConfigurationError(runtime.ErrorCodeUnknownMethod,
			fmt.Sprintf("unknown method %s for %s", methodName, integration), err)
	}

	verb := method.Verb()
	req := &runtime.Request{
		Method:  verb,
		Headers: rc.Headers,
		Form:    rc.BodyFormat == platform.BodyForm,
		URL:     rc.BuildURL(method.Endpoint, params, method.RequiredParams),
	}
	switch verb {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		// The full param object is also sent as the body.
		req.Body = params
	}
	return req, nil
}

func classifyCallError(err error, integration string) *runtime.FlowError {
	var open *resilience.CircuitOpenError
	var exhausted *resilience.RetryExhaustedError
	switch {
	case runtime.IsCancelled(err):
		return runtime.NewCancelledError(err).WithIntegration(integration)
	case errors.As(err, &open):
		return runtime.NewCircuitOpenError(integration, err).
			WithMeta("retry_after", open.RetryAfter.String())
	case errors.As(err, &exhausted):
		fe := runtime.NewTransientError(runtime.ErrorCodeRetryExhausted,
			fmt.Sprintf("%s failed after %d attempts", exhausted.Operation, exhausted.Attempts), err).
			WithIntegration(integration)
		fe.Retries = exhausted.Attempts - 1
		return fe
	}
	if fe, ok := runtime.AsFlowError(err); ok {
		return fe.WithIntegration(integration)
	}
	return runtime.NewTransientError(runtime.ErrorCodeNetwork,
		fmt.Sprintf("call to %s failed", integration), err).WithIntegration(integration)
}

func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?[redacted]"
	}
	return u
}
