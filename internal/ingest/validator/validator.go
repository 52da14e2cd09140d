// Package validator checks pattern registration requests before they reach
// the persistence layer. Besides field length limits it enforces the
// matcher's construction constraints, so a request that validates here
// cannot fail compilation for configuration reasons later.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
)

const (
	maxNameLength = 255
	maxTextLength = 65536
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateRegisterRequest checks the request fields and tolerance settings.
// It tokenizes the text the same way the registry will, so the token-count
// constraints hold for the pattern that actually gets compiled.
func ValidateRegisterRequest(req *ingest.RegisterRequest) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		errs["name"] = "name is required"
	} else if len(name) > maxNameLength {
		errs["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLength)
	}

	tokenCount := 0
	text := strings.TrimSpace(req.Text)
	switch {
	case text == "":
		errs["text"] = "text is required"
	case len(text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	default:
		tokenCount = len(tokenize.Words(text))
		if tokenCount == 0 {
			errs["text"] = "text contains no matchable tokens"
		}
	}

	if req.AllowedDifferences < 0 {
		errs["allowed_differences"] = "allowed_differences must not be negative"
	} else if tokenCount > 0 && req.AllowedDifferences >= tokenCount {
		errs["allowed_differences"] = fmt.Sprintf(
			"allowed_differences must be less than the token count %d", tokenCount)
	}

	if req.NomatchMultiplier < 0.0 || req.NomatchMultiplier >= 1.0 {
		errs["nomatch_multiplier"] = "nomatch_multiplier must be in [0.0, 1.0)"
	}

	if req.Threshold < 0.0 || req.Threshold > 1.0 {
		errs["threshold"] = "threshold must be in [0.0, 1.0]"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
