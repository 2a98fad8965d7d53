package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"spark-assistant/internal/domain"
)

// Operation tells ClassifyStatus which side of a call failed, since the
// same status means different things for an upload and a synthesis.
type Operation int

const (
	OpTranscribe Operation = iota
	OpRespond
	OpSynthesize
)

// ClassifyStatus maps a vendor HTTP status to a dispatch error.
func ClassifyStatus(op Operation, vendor string, statusCode int, body []byte) error {
	err := fmt.Errorf("%s API error %d: %s", vendor, statusCode, strings.TrimSpace(string(body)))

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.NewError(domain.KindAuth, err)
	case op == OpTranscribe && (statusCode == http.StatusBadRequest ||
		statusCode == http.StatusRequestEntityTooLarge ||
		statusCode == http.StatusUnsupportedMediaType ||
		statusCode == http.StatusUnprocessableEntity):
		return domain.NewError(domain.KindInvalidAudio, err)
	case op == OpSynthesize && statusCode == http.StatusUnsupportedMediaType:
		return domain.NewError(domain.KindUnsupportedFormat, err)
	default:
		return domain.NewError(domain.KindServiceUnavailable, err)
	}
}

// CheckResponse returns nil for 2xx responses. Otherwise it drains a
// bounded amount of the body and classifies the status.
func CheckResponse(op Operation, vendor string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return ClassifyStatus(op, vendor, resp.StatusCode, body)
}

// TransportError wraps a failure that happened before any status arrived.
// Query strings are dropped from URL errors since some vendors take
// credentials there.
func TransportError(vendor string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("sending %s request: %w", vendor, stripQuery(err)))
}

func stripQuery(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, _, _ := strings.Cut(urlErr.URL, "?")
	return &url.Error{Op: urlErr.Op, URL: u, Err: urlErr.Err}
}

// Probe performs a reachability check: any response below 500 counts as up.
func Probe(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probing %s: status %d", target, resp.StatusCode)
	}
	return nil
}
