package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openmarket/openmarket-cli/internal/api"
	"github.com/openmarket/openmarket-cli/internal/config"
	"github.com/openmarket/openmarket-cli/internal/resolve"
	"github.com/openmarket/openmarket-cli/internal/thumbnail"
)

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder

	var apiErr *api.APIError
	var rateLimitErr *api.RateLimitError
	var circuitBreakerErr *api.CircuitBreakerError
	var ambiguousErr *resolve.AmbiguousError

	switch {
	case errors.As(err, &rateLimitErr):
		msg.WriteString("Rate limit exceeded.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Wait a few seconds and retry\n")
		msg.WriteString("  - Use --dry-run to preview write requests\n")

	case errors.As(err, &circuitBreakerErr):
		msg.WriteString("Service temporarily unavailable (circuit breaker open).\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - The API has had multiple failures recently\n")
		msg.WriteString("  - Wait 30 seconds and retry\n")

	case errors.Is(err, config.ErrNotConfigured):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: om auth login --identifier <id> --secret <secret>\n")
		msg.WriteString("  - Or export OPENMARKET_IDENTIFIER and OPENMARKET_SECRET\n")

	case errors.As(err, &ambiguousErr):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Pass the product ID instead of its name\n")

	case errors.As(err, &apiErr):
		fmt.Fprintf(&msg, "API error (HTTP %d): %s\n\n", apiErr.StatusCode, apiErr.Body)
		msg.WriteString(suggestionsForStatusCode(apiErr.StatusCode, apiErr.Body))
		if apiErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", apiErr.RequestID)
		}

	case errors.Is(err, thumbnail.ErrDecode):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - The image URL did not return a JPEG, PNG, GIF or WebP image\n")

	case strings.Contains(err.Error(), "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the host: om auth status\n")
		msg.WriteString("  - Check your network connection\n")

	case strings.Contains(err.Error(), "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the host spelling (--host or OPENMARKET_HOST)\n")

	case strings.Contains(err.Error(), "certificate"):
		msg.WriteString("TLS certificate error.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the server's SSL certificate\n")
		msg.WriteString("  - Use an http:// host only for local test servers\n")

	case errors.Is(err, api.ErrFailToResponse), errors.Is(err, api.ErrNoneData):
		fmt.Fprintf(&msg, "%s\n\nDetails: %s\n", api.Message(err), err.Error())

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func suggestionsForStatusCode(code int, body string) string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggestions:\n")

	switch code {
	case 400:
		suggestions.WriteString("  - Check your request parameters\n")
		suggestions.WriteString("  - Use --dry-run to see the request body\n")
		if strings.Contains(body, "required") {
			suggestions.WriteString("  - A required field may be missing\n")
		}

	case 401:
		suggestions.WriteString("  - Your vendor identifier may be wrong\n")
		suggestions.WriteString("  - Run: om auth login\n")

	case 403:
		suggestions.WriteString("  - The product may belong to another vendor\n")
		suggestions.WriteString("  - Check the vendor secret\n")

	case 404:
		suggestions.WriteString("  - The product doesn't exist\n")
		suggestions.WriteString("  - Check the ID is correct\n")
		suggestions.WriteString("  - The product may have been deleted\n")

	case 406, 422:
		suggestions.WriteString("  - Validation failed\n")
		suggestions.WriteString("  - Check prices, stock and currency values\n")

	case 429:
		suggestions.WriteString("  - Too many requests\n")
		suggestions.WriteString("  - Wait and retry in a few seconds\n")

	case 500, 502, 503, 504:
		suggestions.WriteString("  - Server error - not your fault\n")
		suggestions.WriteString("  - Wait and retry\n")

	default:
		suggestions.WriteString("  - Use --debug for more details\n")
	}

	return suggestions.String()
}
