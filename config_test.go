package fabricbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 240*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, []int{502, 503, 504}, cfg.Retry.RetryableStatusCodes)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.NotContains(t, cfg.Retry.RetryMethods, "POST")
	assert.NotContains(t, cfg.Retry.RetryMethods, "PATCH")
}

func TestRetryPolicy_RetryableMethod(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.retryableMethod("GET"))
	assert.True(t, p.retryableMethod("put"))
	assert.False(t, p.retryableMethod("POST"))
	assert.False(t, p.retryableMethod("PATCH"))

	p.RetryMethods = nil
	assert.True(t, p.retryableMethod("POST"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "MaxAttempts"},
		{name: "negative attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = -1 }, wantErr: "MaxAttempts"},
		{name: "client error retryable", mutate: func(c *Config) { c.Retry.RetryableStatusCodes = []int{503, 429} }, wantErr: "429"},
		{name: "multiplier below one", mutate: func(c *Config) { c.Retry.Multiplier = 0.5 }, wantErr: "Multiplier"},
		{name: "max below base", mutate: func(c *Config) { c.Retry.BackoffMax = time.Second }, wantErr: "BackoffMax"},
		{name: "missing operations url", mutate: func(c *Config) { c.OperationsBaseURL = "" }, wantErr: "OperationsBaseURL"},
		{name: "relative operations url", mutate: func(c *Config) { c.OperationsBaseURL = "/v1/operations" }, wantErr: "OperationsBaseURL"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Poll.Interval = 0 }, wantErr: "Interval"},
		{name: "unknown retry method", mutate: func(c *Config) { c.Retry.RetryMethods = []string{"GET", "FETCH"} }, wantErr: "FETCH"},
		{name: "max wait below interval", mutate: func(c *Config) { c.Poll.MaxWait = time.Second }, wantErr: "MaxWait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
