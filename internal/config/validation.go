package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the configuration for problems that would make any
// command fail later. It collects every error rather than stopping at the
// first so the operator can fix the file in one pass.
func (c Config) Validate() error {
	var errs ValidationErrors

	validateName(&errs, "gateway.name", c.Gateway.Name)

	validateURL(&errs, "inbound.issuer", c.Inbound.Issuer, true)
	if c.Inbound.JWKSURL != "" {
		validateURL(&errs, "inbound.jwksUrl", c.Inbound.JWKSURL, false)
	}
	validateDuration(&errs, "inbound.leeway", c.Inbound.Leeway)

	validateName(&errs, "credentialProvider.name", c.CredentialProvider.Name)
	validateURL(&errs, "credentialProvider.issuer", c.CredentialProvider.Issuer, true)

	seen := make(map[string]bool, len(c.Targets))
	for i, target := range c.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		validateName(&errs, field+".name", target.Name)
		validateURL(&errs, field+".endpoint", target.Endpoint, true)
		if target.Name != "" && seen[target.Name] {
			errs.Add(field+".name", "duplicate target name", target.Name)
		}
		seen[target.Name] = true
	}

	switch c.Secrets.Source {
	case "", SecretSourceAuto, SecretSourceEnv, SecretSourceSSM:
	default:
		errs.Add("secrets.source",
			fmt.Sprintf("must be one of: %s, %s, %s", SecretSourceAuto, SecretSourceEnv, SecretSourceSSM),
			c.Secrets.Source)
	}

	validateDuration(&errs, "provisioning.waitTimeout", c.Provisioning.WaitTimeout)
	validateDuration(&errs, "provisioning.retryBudget", c.Provisioning.RetryBudget)
	validateDuration(&errs, "broker.safetyMargin", c.Broker.SafetyMargin)

	if c.Broker.MaxAttempts < 1 {
		errs.Add("broker.maxAttempts", "must be at least 1", c.Broker.MaxAttempts)
	}
	// Port 0 is allowed: the server binds an ephemeral port and reports it.
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		errs.Add("serve.port", "must be between 0 and 65535", c.Serve.Port)
	}
	if c.Serve.Backend != "" {
		validateURL(&errs, "serve.backend", c.Serve.Backend, false)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateName(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "is required", value)
		return
	}
	if strings.Contains(value, " ") {
		errs.Add(field, "cannot contain spaces", value)
	}
	if len(value) > 100 {
		errs.Add(field, "must not exceed 100 characters", value)
	}
}

func validateURL(errs *ValidationErrors, field, value string, required bool) {
	if strings.TrimSpace(value) == "" {
		if required {
			errs.Add(field, "is required", value)
		}
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs.Add(field, "must be an http(s) URL", value)
	}
}

func validateDuration(errs *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		errs.Add(field, "must be a duration such as \"30s\" or \"5m\"", value)
	}
}
