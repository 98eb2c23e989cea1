package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, CodeNone},
		{"missing key sentinel", ErrNoAPIKey, CodeNoAPIKey},
		{"wrapped missing key", fmt.Errorf("provider init: %w", ErrNoAPIKey), CodeNoAPIKey},
		{"invalid key", errors.New("Incorrect API key provided"), CodeInvalidAPIKey},
		{"unauthorized", errors.New("401 Unauthorized"), CodeInvalidAPIKey},
		{"quota", errors.New("You exceeded your current quota"), CodeQuotaExceeded},
		{"rate limit", errors.New("Rate limit reached for requests"), CodeQuotaExceeded},
		{"model", errors.New("The model `gpt-9` does not exist"), CodeModelError},
		{"network", errors.New("dial tcp: connection refused"), CodeNetworkError},
		{"timeout", errors.New("context deadline exceeded"), CodeNetworkError},
		{"unknown", errors.New("something odd"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
