package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultSMDPAddress = "rsp.telnyx.com"
	defaultTimeout     = 20 * time.Second
)

// APIError is a non-2xx answer from Telnyx.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("telnyx: status %d", e.Status)
	}
	return fmt.Sprintf("telnyx: status %d: %s", e.Status, e.Detail)
}

type TelnyxClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *zap.Logger
}

var _ Gateway = (*TelnyxClient)(nil)

func NewTelnyxClient(cfg config.TelnyxConfig, tokens TokenSource, log *zap.Logger) *TelnyxClient {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TelnyxClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		tokens: tokens,
		log:    log.Named("telnyx"),
	}
}

func (c *TelnyxClient) CreateResource(ctx context.Context, quantity int) (*Resource, error) {
	if quantity <= 0 {
		quantity = 1
	}
	body := map[string]interface{}{
		"sim_card_type": "esim",
		"quantity":      quantity,
	}

	var data json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/sim_cards", body, &data); err != nil {
		return nil, c.classify("create resource", err)
	}

	// A bulk order answers with a list.
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			return nil, apperrors.Gateway("telnyx", "create resource", fmt.Errorf("empty sim card list"))
		}
		data = list[0]
	}

	var res Resource
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, apperrors.Gateway("telnyx", "create resource", fmt.Errorf("decoding sim card: %w", err))
	}
	if res.ExternalID == "" {
		return nil, apperrors.Gateway("telnyx", "create resource", fmt.Errorf("sim card without id"))
	}
	if res.SMDPAddress == "" {
		res.SMDPAddress = DefaultSMDPAddress
	}
	if res.ActivationCode == "" && res.ICCID != "" {
		res.ActivationCode = fmt.Sprintf("LPA:1$%s$%s", res.SMDPAddress, res.ICCID)
	}

	c.log.Info("sim card created", zap.String("external_id", res.ExternalID), zap.String("iccid", res.ICCID))
	return &res, nil
}

func (c *TelnyxClient) Activate(ctx context.Context, externalID string) error {
	return c.action(ctx, externalID, "activate")
}

func (c *TelnyxClient) Deactivate(ctx context.Context, externalID string) error {
	return c.action(ctx, externalID, "deactivate")
}

func (c *TelnyxClient) action(ctx context.Context, externalID, action string) error {
	path := fmt.Sprintf("/sim_cards/%s/actions/%s", url.PathEscape(externalID), action)
	err := c.call(ctx, http.MethodPost, path, nil, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusUnprocessableEntity) {
		// Telnyx rejects a transition into the state the SIM is already in.
		c.log.Info("sim card already in requested state",
			zap.String("external_id", externalID),
			zap.String("action", action),
			zap.String("detail", apiErr.Detail))
		return nil
	}
	if err != nil {
		return c.classify(action, err)
	}
	return nil
}

func (c *TelnyxClient) Usage(ctx context.Context, externalID string) (models.JSON, error) {
	var data models.JSON
	path := fmt.Sprintf("/sim_cards/%s/usage", url.PathEscape(externalID))
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, c.classify("usage", err)
	}
	return data, nil
}

// call performs one request, refreshing the token and retrying exactly once
// when Telnyx answers 401.
func (c *TelnyxClient) call(ctx context.Context, method, path string, in, out interface{}) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	err = c.do(ctx, method, path, tok, in, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	c.log.Warn("unauthorized, refreshing token", zap.String("path", path))
	tok, err = c.tokens.RefreshStale(ctx, tok)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	return c.do(ctx, method, path, tok, in, out)
}

func (c *TelnyxClient) do(ctx context.Context, method, path, tok string, in, out interface{}) error {
	var payload io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: errorDetail(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// classify turns a transport or API failure into a GATEWAY error. Timeouts
// and gateway timeouts also match ErrOutcomeUnknown.
func (c *TelnyxClient) classify(op string, err error) error {
	if isTimeout(err) {
		c.log.Warn("telnyx call timed out", zap.String("op", op), zap.Error(err))
		return apperrors.Gateway("telnyx", op, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err))
	}
	c.log.Error("telnyx call failed", zap.String("op", op), zap.Error(err))
	return apperrors.Gateway("telnyx", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusGatewayTimeout
}

func errorDetail(raw []byte) string {
	var body struct {
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Errors) > 0 {
		if body.Errors[0].Detail != "" {
			return body.Errors[0].Detail
		}
		return body.Errors[0].Title
	}
	return ""
}
