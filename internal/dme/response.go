package dme

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	statusRE = regexp.MustCompile(`Status\s*:\s*([A-Z_]+)`)
	codeRE   = regexp.MustCompile(`Result Code\s*:\s*CLI_([0-9]+)`)
	// Older clients only leave the HTTP response header.
	httpRE = regexp.MustCompile(`(?m)^(?:HTTP/[0-9.]+\s+)?(201 Created|200 OK)\b`)
)

// ParseResponse decodes the textual output of a registration command.
// Only a COMPLETED status, or an HTTP 201/200 header when no status line is
// present, counts as success. FAILED with a documented result code yields a
// *RegistrationError; anything else wraps ErrUnparseableResponse.
func ParseResponse(output string) (Confirmation, error) {
	m := statusRE.FindStringSubmatch(output)
	if m == nil {
		if h := httpRE.FindStringSubmatch(output); h != nil {
			if h[1] == "201 Created" {
				return Confirmation{Outcome: OutcomeNew, Message: "Created", Output: output}, nil
			}
			return Confirmation{Outcome: OutcomeUpdate, Message: "Updated", Output: output}, nil
		}
		return Confirmation{}, fmt.Errorf("%w: no status line", ErrUnparseableResponse)
	}

	switch m[1] {
	case "COMPLETED":
		return Confirmation{Outcome: OutcomeCompleted, Message: "Successful registration", Output: output}, nil
	case "FAILED":
		c := codeRE.FindStringSubmatch(output)
		if c == nil {
			return Confirmation{}, fmt.Errorf("%w: FAILED without result code", ErrUnparseableResponse)
		}
		code, err := strconv.Atoi(c[1])
		if err != nil {
			return Confirmation{}, fmt.Errorf("%w: result code %q", ErrUnparseableResponse, c[1])
		}
		if _, known := resultCauses[code]; !known {
			return Confirmation{}, fmt.Errorf("%w: unknown result code CLI_%d", ErrUnparseableResponse, code)
		}
		return Confirmation{}, newRegistrationError(code, output)
	}
	return Confirmation{}, fmt.Errorf("%w: status %s", ErrUnparseableResponse, m[1])
}
