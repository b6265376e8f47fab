package httpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
)

func mustGateway(test *testing.T, baseURL string) *Gateway {
	test.Helper()
	gateway, err := New(Config{BaseURL: baseURL})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	return gateway
}

func TestNewRequiresBaseURL(test *testing.T) {
	test.Parallel()
	_, err := New(Config{BaseURL: "   "})
	if !errors.Is(err, cart.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestFetchCartDecodesPayload(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet || request.URL.Path != "/cart" {
			test.Errorf("unexpected request: %s %s", request.Method, request.URL.Path)
		}
		if request.Header.Get("Authorization") != "Bearer bearer-token" {
			test.Errorf("missing bearer header, got %q", request.Header.Get("Authorization"))
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"items":[{"product_id":"p1","quantity":2,"price":10}]}`))
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	payload, err := gateway.FetchCart(context.Background(), "bearer-token")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		test.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAddItemPostsBodyWithFields(test *testing.T) {
	test.Parallel()
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/cart/items" {
			test.Errorf("unexpected request: %s %s", request.Method, request.URL.Path)
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			test.Errorf("decode body: %v", err)
		}
		writer.WriteHeader(http.StatusCreated)
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	_, err := gateway.AddItem(context.Background(), "bearer-token", "p1", 2, map[string]any{"price": 19.9})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if received["product_id"] != "p1" {
		test.Fatalf("expected product_id p1, got %v", received["product_id"])
	}
	if received["quantity"] != float64(2) {
		test.Fatalf("expected quantity 2, got %v", received["quantity"])
	}
	if received["price"] != 19.9 {
		test.Fatalf("expected price passthrough, got %v", received["price"])
	}
}

func TestEmptySuccessBodyDecodesToEmptyPayload(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	payload, err := gateway.ClearCart(context.Background(), "bearer-token")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if len(payload) != 0 {
		test.Fatalf("expected empty payload, got %+v", payload)
	}
}

func TestErrorEnvelopeBecomesHTTPError(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = writer.Write([]byte(`{"message":"quantity too large","errors":{"quantity":["must be at most 99"]}}`))
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	_, err := gateway.UpdateItem(context.Background(), "bearer-token", "line-1", 500)

	var httpError *cart.HTTPError
	if !errors.As(err, &httpError) {
		test.Fatalf("expected *cart.HTTPError, got %v", err)
	}
	if httpError.StatusCode != http.StatusUnprocessableEntity {
		test.Fatalf("expected 422, got %d", httpError.StatusCode)
	}
	if httpError.Message != "quantity too large" {
		test.Fatalf("unexpected message: %q", httpError.Message)
	}
	if len(httpError.ValidationErrors["quantity"]) != 1 {
		test.Fatalf("expected validation detail, got %+v", httpError.ValidationErrors)
	}
}

func TestUnauthorizedMapsToAuthExpired(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	_, err := gateway.FetchCart(context.Background(), "stale-token")

	if !cart.IsAuthExpired(err) {
		test.Fatalf("expected auth-expired mapping, got %v", err)
	}
}

func TestNotFoundIsEmptyCartSignal(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	_, err := gateway.FetchCart(context.Background(), "bearer-token")

	if !cart.IsEmptyCartSignal(err) {
		test.Fatalf("expected empty-cart signal, got %v", err)
	}
}

func TestTransportFailureWrapped(test *testing.T) {
	test.Parallel()
	gateway := mustGateway(test, "http://127.0.0.1:1")

	_, err := gateway.FetchCart(context.Background(), "bearer-token")

	if err == nil {
		test.Fatal("expected connection failure")
	}
	var operationError cart.OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestMalformedSuccessBodyRejected(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("not-json"))
	}))
	test.Cleanup(server.Close)
	gateway := mustGateway(test, server.URL)

	_, err := gateway.FetchCart(context.Background(), "bearer-token")

	if !errors.Is(err, cart.ErrInvalidCartPayload) {
		test.Fatalf("expected ErrInvalidCartPayload, got %v", err)
	}
}
