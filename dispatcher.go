package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Request describes an arbitrary authorized API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded when non-nil. Keeping it as a value rather than
	// a stream is what makes the replay after a token refresh trivial.
	Body any
}

// Response is the terminal outcome of a dispatched request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return NewTransportError(err, "failed to decode response body")
	}
	return nil
}

// retryMarkerHeader is set on the replayed request so a second rejection is
// observable server-side and unambiguous in logs.
const retryMarkerHeader = "X-Auth-Retry"

// Dispatcher sends authorized requests to the archive API. It injects the
// bearer token from the TokenStore and, on a 401, refreshes the token and
// replays the original request exactly once. Concurrent 401s coalesce onto
// a single refresh: every waiter observes the same outcome, then replays
// its own request.
type Dispatcher struct {
	http    *resty.Client
	tokens  TokenStore
	session *SessionManager
	logger  Logger
	refresh singleflight.Group
}

func NewDispatcher(cfg Config, session *SessionManager, tokens TokenStore) *Dispatcher {
	client := resty.New().
		SetBaseURL(cfg.GetBaseURL()).
		SetTimeout(cfg.GetRequestTimeout()).
		SetHeader("Accept", "application/json")

	return &Dispatcher{
		http:    client,
		tokens:  tokens,
		session: session,
		logger:  defLogger{},
	}
}

func (d *Dispatcher) WithLogger(logger Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Do dispatches the request. Any HTTP status other than 401 is returned as
// a Response with a nil error; transport failures return an error. A 401
// triggers the refresh-and-replay path; if the refresh fails, or the
// replayed request is rejected again, the 401 response is returned together
// with an authorization error. There is never a second refresh for the
// same call.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()

	resp, err := d.send(ctx, req, requestID, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	d.logger.Debug("request %s %s rejected, refreshing token (request_id=%s)", req.Method, req.Path, requestID)

	if _, refreshErr, shared := d.refresh.Do("token-refresh", func() (any, error) {
		return d.session.RefreshToken(ctx)
	}); refreshErr != nil {
		// The session manager has already moved to anonymous; surface the
		// original rejection.
		d.logger.Warn("token refresh failed, surfacing 401 (request_id=%s)", requestID)
		return resp, ErrUnauthorized
	} else if shared {
		d.logger.Debug("refresh coalesced with concurrent caller (request_id=%s)", requestID)
	}

	retried, err := d.send(ctx, req, requestID, true)
	if err != nil {
		return nil, err
	}
	if retried.StatusCode == http.StatusUnauthorized {
		d.logger.Warn("request rejected again after refresh, not retrying (request_id=%s)", requestID)
		return retried, ErrUnauthorized
	}
	return retried, nil
}

func (d *Dispatcher) send(ctx context.Context, req Request, requestID string, isRetry bool) (*Response, error) {
	r := d.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID)

	if req.Header != nil {
		r.SetHeaderMultiValues(req.Header)
	}
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if isRetry {
		r.SetHeader(retryMarkerHeader, "1")
	}
	if token, ok := d.tokens.Get(); ok {
		r.SetAuthToken(token)
	}

	resp, err := r.Execute(strings.ToUpper(req.Method), req.Path)
	if err != nil {
		return nil, NewTransportError(err, "request dispatch failed")
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
