package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"

	"go.uber.org/zap"
)

// PaystackGateway drives the hosted checkout: initialize returns an
// authorization URL, verify reports the final status.
type PaystackGateway struct {
	secretKey   string
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewPaystackGateway(cfg config.PaystackConfig, log *zap.Logger) *PaystackGateway {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaystackGateway{
		secretKey:   cfg.SecretKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		log: log.Named("paystack"),
	}
}

func (g *PaystackGateway) Name() string { return string(MethodPaystack) }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInit struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaystackTransaction is the transaction object returned by verify and
// carried in charge.success webhooks.
type PaystackTransaction struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	Metadata        json.RawMessage `json:"metadata"`
}

// Result classifies the transaction.
func (t PaystackTransaction) Result() ChargeResult {
	switch strings.ToLower(t.Status) {
	case "success":
		return ChargeSucceeded{
			Reference: t.Reference,
			Amount:    FromMinor(t.Amount),
			Currency:  strings.ToUpper(t.Currency),
			Metadata:  ParsePaystackMetadata(t.Metadata),
		}
	case "failed", "reversed", "abandoned":
		reason := t.GatewayResponse
		if reason == "" {
			reason = "transaction " + t.Status
		}
		return ChargeFailed{Reference: t.Reference, Reason: reason}
	default:
		return ChargePending{Reference: t.Reference, Status: t.Status}
	}
}

func (g *PaystackGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if req.Email == "" {
		return nil, apperrors.Validation("email is required for bank checkout")
	}

	md := cloneMetadata(req.Metadata)
	md[MetaUserID] = strconv.FormatUint(uint64(req.UserID), 10)
	body := map[string]interface{}{
		"email":    req.Email,
		"amount":   ToMinor(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"metadata": md,
	}
	if g.callbackURL != "" {
		body["callback_url"] = g.callbackURL
	}

	var out paystackInit
	if err := g.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		g.log.Error("failed to initialize transaction", zap.Uint("user_id", req.UserID), zap.Error(err))
		return nil, apperrors.Gateway("paystack", "create charge", err)
	}

	return &Charge{
		Provider:     g.Name(),
		Reference:    out.Reference,
		ClientHandle: out.AuthorizationURL,
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
	}, nil
}

func (g *PaystackGateway) VerifyCharge(ctx context.Context, reference string) (ChargeResult, error) {
	if reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}
	var txn PaystackTransaction
	if err := g.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &txn); err != nil {
		g.log.Warn("failed to verify transaction", zap.String("reference", reference), zap.Error(err))
		return nil, apperrors.Gateway("paystack", "verify charge", err)
	}
	if txn.Reference == "" {
		txn.Reference = reference
	}
	return txn.Result(), nil
}

func (g *PaystackGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("status %d: decoding response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}

// ParsePaystackMetadata flattens Paystack metadata into string pairs.
// Metadata may be an object, a JSON-encoded string, or absent, and may carry
// values in custom_fields. Snake-case user_id and plan_id are accepted.
func ParsePaystackMetadata(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		var encoded string
		if json.Unmarshal(raw, &encoded) != nil || json.Unmarshal([]byte(encoded), &obj) != nil {
			return out
		}
	}

	for k, v := range obj {
		if k == "custom_fields" {
			continue
		}
		if s, ok := scalarString(v); ok {
			out[k] = s
		}
	}
	if fields, ok := obj["custom_fields"].([]interface{}); ok {
		for _, f := range fields {
			field, ok := f.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := field["variable_name"].(string)
			if s, ok := scalarString(field["value"]); ok && name != "" {
				if _, exists := out[name]; !exists {
					out[name] = s
				}
			}
		}
	}

	for snake, camel := range map[string]string{"user_id": MetaUserID, "plan_id": MetaPlanID} {
		if v, ok := out[snake]; ok {
			if _, exists := out[camel]; !exists {
				out[camel] = v
			}
		}
	}
	return out
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
