package records

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
)

// HTTPWallet talks to a wallet bridge exposing records over JSON:
//
//	GET  {endpoint}/records?program=P&plaintext=true|false  -> [record, ...]
//	GET  {endpoint}/records/plaintexts?program=P            -> ["{ ... }", ...]
//	POST {endpoint}/decrypt {"ciphertext": "..."}           -> {"plaintext": "..."}
type HTTPWallet struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPWallet creates a wallet bridge client. timeout bounds each HTTP
// round trip; zero means 10s.
func NewHTTPWallet(endpoint string, timeout time.Duration) *HTTPWallet {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWallet{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Capabilities exposes every operation the bridge supports. The bridge has
// no vendor-specific listing, so Fallback stays nil.
func (w *HTTPWallet) Capabilities() Capabilities {
	return Capabilities{
		PlaintextRecords: RecordListerFunc(func(ctx context.Context, program string) ([]any, error) {
			return w.records(ctx, "/records", program, url.Values{"plaintext": {"true"}})
		}),
		CiphertextRecords: RecordListerFunc(func(ctx context.Context, program string) ([]any, error) {
			return w.records(ctx, "/records", program, url.Values{"plaintext": {"false"}})
		}),
		Decrypter: DecrypterFunc(w.Decrypt),
		RecordPlaintexts: RecordListerFunc(func(ctx context.Context, program string) ([]any, error) {
			return w.records(ctx, "/records/plaintexts", program, nil)
		}),
	}
}

func (w *HTTPWallet) records(ctx context.Context, path, program string, q url.Values) ([]any, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("program", program)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build wallet request: %w", err)
	}

	var recs []any
	if err := w.do(req, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Decrypt asks the bridge to decrypt a single record ciphertext.
func (w *HTTPWallet) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	body, err := json.Marshal(map[string]string{"ciphertext": ciphertext})
	if err != nil {
		return "", fmt.Errorf("encode decrypt request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+"/decrypt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build wallet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Plaintext string `json:"plaintext"`
	}
	if err := w.do(req, &out); err != nil {
		return "", err
	}
	return out.Plaintext, nil
}

func (w *HTTPWallet) do(req *http.Request, v any) error {
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query wallet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wallet returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode wallet response: %w", err)
	}
	return nil
}
