package scrape

import (
	"net"
	"net/url"
	"strings"

	"docs-ingestion-service/internal/domain/ports/adapter"
)

var _ adapter.URLValidator = (*Validator)(nil)

// Validator checks and sanitizes ingestion URLs. Sanitization strips
// fragments and normalizes the scheme/host casing; validation rejects
// non-http schemes and loopback/private hosts so the fetcher is never
// pointed at internal infrastructure.
type Validator struct {
	AllowPrivateHosts bool // for local development against test servers
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(raw string) adapter.ValidationResult {
	var errs []string

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return adapter.ValidationResult{IsValid: false, Errors: []string{"URL is empty"}}
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return adapter.ValidationResult{IsValid: false, Errors: []string{"Invalid URL format"}}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		errs = append(errs, "URL scheme must be http or https")
	}

	host := u.Hostname()
	if !v.AllowPrivateHosts && isPrivateHost(host) {
		errs = append(errs, "URL host resolves to a private or loopback address")
	}

	if len(errs) > 0 {
		return adapter.ValidationResult{IsValid: false, Errors: errs}
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return adapter.ValidationResult{IsValid: true, SanitizedURL: u.String()}
}

func isPrivateHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
