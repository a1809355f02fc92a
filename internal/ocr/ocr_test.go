package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		if req.ImageBase64 != "aW1n" {
			t.Errorf("imageBase64 = %q", req.ImageBase64)
		}

		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}

		_ = json.NewEncoder(w).Encode(extractResponse{
			FirstName:      "YANG",
			LastName:       "DING",
			PassportNumber: "E1234567",
			Nationality:    "SGP",
			DateOfBirth:    "1990-01-01",
		})
	}))
	t.Cleanup(srv.Close)

	fields, err := New(Config{Endpoint: srv.URL, APIKey: "key"}).Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if fields.PassportNumber != "E1234567" || fields.Nationality != "SGP" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestExtractFailures(t *testing.T) {
	if _, err := New(Config{}).Extract(context.Background(), []byte("img")); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}

	blank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"firstName":"YANG"}`))
	}))
	t.Cleanup(blank.Close)

	if _, err := New(Config{Endpoint: blank.URL}).Extract(context.Background(), []byte("img")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("err = %v, want ErrUnreadable", err)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(broken.Close)

	if _, err := New(Config{Endpoint: broken.URL}).Extract(context.Background(), []byte("img")); err == nil {
		t.Error("Extract succeeded on a 429")
	}
}
