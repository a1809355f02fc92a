package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avstrong/checkin/internal/reservation"
)

var (
	ErrDisabled   = errors.New("passport ocr disabled")
	ErrUnreadable = errors.New("passport could not be read")
)

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

// Extractor sends passport images to an extraction service that answers with
// the machine-readable fields.
type Extractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func New(conf Config) *Extractor {
	client := conf.Client
	if client == nil {
		timeout := conf.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second //nolint:gomnd
		}

		client = &http.Client{Timeout: timeout} //nolint:exhaustruct
	}

	return &Extractor{
		endpoint: conf.Endpoint,
		apiKey:   conf.APIKey,
		client:   client,
	}
}

type extractRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

type extractResponse struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	PassportNumber string `json:"passportNumber"`
	Nationality    string `json:"nationality"`
	DateOfBirth    string `json:"dateOfBirth"`
}

func (e *Extractor) Extract(ctx context.Context, image []byte) (reservation.PassportFields, error) {
	if e.endpoint == "" {
		return reservation.PassportFields{}, ErrDisabled
	}

	body, err := json.Marshal(extractRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		MimeType:    http.DetectContentType(image),
	})
	if err != nil {
		return reservation.PassportFields{}, fmt.Errorf("encode ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return reservation.PassportFields{}, fmt.Errorf("build ocr request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return reservation.PassportFields{}, fmt.Errorf("call ocr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:gomnd

		return reservation.PassportFields{}, fmt.Errorf("ocr status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return reservation.PassportFields{}, fmt.Errorf("decode ocr response: %w", err)
	}

	if out.PassportNumber == "" {
		return reservation.PassportFields{}, ErrUnreadable
	}

	return reservation.PassportFields{
		FirstName:      out.FirstName,
		LastName:       out.LastName,
		PassportNumber: out.PassportNumber,
		Nationality:    out.Nationality,
		DateOfBirth:    out.DateOfBirth,
	}, nil
}
