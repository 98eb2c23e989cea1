package openai

import (
	"net/http"

	"github.com/veritium/corpusqa/ai"
)

// newHTTPClient builds the transport handed to the langchaingo clients.
// Their default client carries no timeout, so a black-holed upstream
// connection would hang the call and every worker waiting on it.
func newHTTPClient(config *ai.Config) *http.Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = ai.DefaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}
