package httpgateway

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

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
)

const (
	errorOperationGateway = "gateway"
	errorSubjectRequest   = "request"
	errorSubjectResponse  = "response"
	errorCodeBuild        = "build"
	errorCodeSend         = "send"
	errorCodeRead         = "read"
	errorCodeDecode       = "decode"

	pathCart  = "/cart"
	pathItems = "/cart/items"

	defaultTimeout = 10 * time.Second
)

// Config holds the gateway settings.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Gateway implements cart.ServerGateway over the storefront's JSON API.
// Non-2xx responses become *cart.HTTPError carrying the envelope's message
// and validation errors; connection failures are wrapped transport errors.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// New validates the configuration and returns a Gateway.
func New(config Config) (*Gateway, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: base url is required", cart.ErrInvalidServiceConfig)
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", cart.ErrInvalidServiceConfig, err)
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Gateway{baseURL: trimmed, client: client}, nil
}

// FetchCart reads the server cart resource.
func (gateway *Gateway) FetchCart(ctx context.Context, token string) (map[string]any, error) {
	return gateway.doJSON(ctx, http.MethodGet, pathCart, token, nil)
}

// AddItem posts an add intent.
func (gateway *Gateway) AddItem(ctx context.Context, token string, productID string, quantity int64, fields map[string]any) (map[string]any, error) {
	body := map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	}
	for key, value := range fields {
		if _, exists := body[key]; !exists {
			body[key] = value
		}
	}
	return gateway.doJSON(ctx, http.MethodPost, pathItems, token, body)
}

// UpdateItem patches a single line's quantity.
func (gateway *Gateway) UpdateItem(ctx context.Context, token string, itemID string, quantity int64) (map[string]any, error) {
	body := map[string]any{"quantity": quantity}
	return gateway.doJSON(ctx, http.MethodPatch, pathItems+"/"+url.PathEscape(itemID), token, body)
}

// RemoveItem deletes a single line.
func (gateway *Gateway) RemoveItem(ctx context.Context, token string, itemID string) (map[string]any, error) {
	return gateway.doJSON(ctx, http.MethodDelete, pathItems+"/"+url.PathEscape(itemID), token, nil)
}

// ClearCart issues the bulk-clear request.
func (gateway *Gateway) ClearCart(ctx context.Context, token string) (map[string]any, error) {
	return gateway.doJSON(ctx, http.MethodDelete, pathCart, token, nil)
}

func (gateway *Gateway) doJSON(ctx context.Context, method string, path string, token string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, cart.WrapError(errorOperationGateway, errorSubjectRequest, errorCodeBuild, err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, gateway.baseURL+path, reader)
	if err != nil {
		return nil, cart.WrapError(errorOperationGateway, errorSubjectRequest, errorCodeBuild, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := gateway.client.Do(request)
	if err != nil {
		return nil, cart.WrapError(errorOperationGateway, errorSubjectRequest, errorCodeSend, err)
	}
	defer func() { _ = response.Body.Close() }()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, cart.WrapError(errorOperationGateway, errorSubjectResponse, errorCodeRead, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeHTTPError(response.StatusCode, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, cart.WrapError(errorOperationGateway, errorSubjectResponse, errorCodeDecode, fmt.Errorf("%w: %v", cart.ErrInvalidCartPayload, err))
	}
	return payload, nil
}

// errorEnvelope mirrors the backend's non-2xx body: {message, errors?}.
type errorEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func decodeHTTPError(statusCode int, raw []byte) *cart.HTTPError {
	envelope := errorEnvelope{}
	_ = json.Unmarshal(raw, &envelope)
	return &cart.HTTPError{
		StatusCode:       statusCode,
		Message:          envelope.Message,
		ValidationErrors: envelope.Errors,
	}
}
