package httpx

import "net/http"

// IsRetryableHTTPStatus reports whether a response status is worth another attempt.
func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}
