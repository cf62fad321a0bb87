package models

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/briefer/internal/webcontext"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CheckStatus maps search API status codes onto the web context error
// sentinels. The body is drained on error.
func CheckStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w (http %d)", provider, webcontext.ErrMissingCredentials, resp.StatusCode)
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w (http %d)", provider, webcontext.ErrQuotaExceeded, resp.StatusCode)
	default:
		return fmt.Errorf("%s: http %d: %s", provider, resp.StatusCode, msg)
	}
}
