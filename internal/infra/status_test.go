package infra_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		op     infra.Operation
		status int
		want   error
	}{
		{"unauthorized", infra.OpRespond, http.StatusUnauthorized, domain.ErrAuth},
		{"forbidden", infra.OpSynthesize, http.StatusForbidden, domain.ErrAuth},
		{"bad audio", infra.OpTranscribe, http.StatusBadRequest, domain.ErrInvalidAudio},
		{"too large", infra.OpTranscribe, http.StatusRequestEntityTooLarge, domain.ErrInvalidAudio},
		{"bad chat request", infra.OpRespond, http.StatusBadRequest, domain.ErrServiceUnavailable},
		{"unsupported format", infra.OpSynthesize, http.StatusUnsupportedMediaType, domain.ErrUnsupportedFormat},
		{"rate limited", infra.OpRespond, http.StatusTooManyRequests, domain.ErrServiceUnavailable},
		{"server error", infra.OpTranscribe, http.StatusBadGateway, domain.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := infra.ClassifyStatus(tt.op, "vendor", tt.status, []byte("boom"))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want kind %v", err, tt.want)
			}
		})
	}
}

func TestTransportError_PassesCancellation(t *testing.T) {
	if err := infra.TransportError("x", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
	if err := infra.TransportError("x", errors.New("dial tcp")); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("got %v", err)
	}
}

func TestTransportError_DropsQueryString(t *testing.T) {
	cause := &url.Error{Op: "Post", URL: "http://127.0.0.1:1/v1/chat?key=secret-value", Err: errors.New("connection refused")}

	err := infra.TransportError("x", cause)

	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("query string kept: %v", err)
	}
	if !strings.Contains(err.Error(), "http://127.0.0.1:1/v1/chat") {
		t.Errorf("url path lost: %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("cause lost: %v", err)
	}
}

func TestProbe(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client := &http.Client{Timeout: time.Second}
	if err := infra.Probe(context.Background(), client, up.URL); err != nil {
		t.Errorf("up: %v", err)
	}
	if err := infra.Probe(context.Background(), client, down.URL); err == nil {
		t.Error("down: expected error")
	}
}
