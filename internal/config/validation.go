package config

import (
	"fmt"
	"net/url"
	"strings"
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

// ValidateServerName checks that a server name is usable as a YAML key and
// a CLI argument.
func ValidateServerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Value: name, Message: "is required for server"}
	}
	if len(name) > 100 {
		return ValidationError{Field: "name", Value: name, Message: "must not exceed 100 characters"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return ValidationError{Field: "name", Value: name, Message: "cannot contain spaces"}
	}
	return nil
}

// ValidateHTTPURL checks that raw is an absolute http or https URL.
func ValidateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{Field: field, Value: raw, Message: "must be an absolute http(s) URL"}
	}
	return nil
}

// Validate checks the whole configuration and returns every problem found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.OAuth.CallbackTimeout < 0 {
		errs.Add("oauth.callbackTimeout", "must not be negative", c.OAuth.CallbackTimeout)
	}
	if c.OAuth.ExpiryBuffer < 0 {
		errs.Add("oauth.expiryBuffer", "must not be negative", c.OAuth.ExpiryBuffer)
	}
	if c.OAuth.HTTPTimeout < 0 {
		errs.Add("oauth.httpTimeout", "must not be negative", c.OAuth.HTTPTimeout)
	}
	if c.OAuth.ConnectTimeout < 0 {
		errs.Add("oauth.connectTimeout", "must not be negative", c.OAuth.ConnectTimeout)
	}

	for _, name := range c.ServerNames() {
		errs = append(errs, c.Servers[name].Validate()...)
	}

	return errs
}

// Validate checks a single server definition.
func (s *Server) Validate() ValidationErrors {
	var errs ValidationErrors
	prefix := "servers." + s.Name

	if err := ValidateServerName(s.Name); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	transports := 0
	for _, set := range []bool{s.Command != "", s.URL != "", s.HTTPURL != ""} {
		if set {
			transports++
		}
	}
	switch {
	case transports == 0:
		errs.Add(prefix, "one of command, url or httpUrl is required")
		return errs
	case transports > 1:
		errs.Add(prefix, "only one of command, url or httpUrl may be set")
		return errs
	}

	if s.HTTPURL != "" {
		if err := ValidateHTTPURL(prefix+".httpUrl", s.HTTPURL); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}
	if s.URL != "" {
		if err := ValidateHTTPURL(prefix+".url", s.URL); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}

	switch a := s.Auth.(type) {
	case nil, NoAuth:
	case BearerAuth:
		if s.Transport() == TransportStdio {
			errs.Add(prefix+".auth", "stdio servers do not support authentication")
		}
		if strings.TrimSpace(a.Token) == "" {
			errs.Add(prefix+".auth.token", "is required for bearer auth")
		}
	case OAuthAuth:
		if s.Transport() == TransportStdio {
			errs.Add(prefix+".auth", "stdio servers do not support authentication")
		}
		if strings.TrimSpace(a.ClientID) == "" {
			errs.Add(prefix+".auth.clientId", "is required for oauth auth")
		}
		if a.AuthServerURL != "" {
			if err := ValidateHTTPURL(prefix+".auth.authServerUrl", a.AuthServerURL); err != nil {
				errs = append(errs, err.(ValidationError))
			}
		}
	}

	return errs
}
