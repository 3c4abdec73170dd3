package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/services"
)

const (
	// Identity headers set by the authenticating proxy in front of the API.
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	maxBodyBytes = 1 << 20
)

var errUnknownRole = errors.New("unknown role")

// callerFrom reads the caller identity. An empty role defers to the
// stored one.
func callerFrom(r *http.Request) (services.Caller, error) {
	id := sanitizeInput(r.Header.Get(HeaderUserID))
	if id == "" {
		return services.Caller{}, core.Invalid(core.ErrEmptyUser)
	}
	role := core.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	switch role {
	case "", core.RoleGuest, core.RoleMember, core.RolePremium:
	default:
		return services.Caller{}, core.Invalid(fmt.Errorf("%w: %q", errUnknownRole, role))
	}
	return services.Caller{UserID: id, Role: role}, nil
}

// decodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Invalid(errors.New("request body is empty"))
		}
		return core.Invalid(fmt.Errorf("malformed request body: %w", err))
	}
	if dec.More() {
		return core.Invalid(errors.New("request body must hold a single JSON object"))
	}
	return nil
}

// monthParam reads a month key from the query, or returns fallback when
// the parameter is absent. Validation is left to the service.
func monthParam(r *http.Request, name string, fallback core.MonthKey) core.MonthKey {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		return core.MonthKey(v)
	}
	return fallback
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// amountBody is the payload of endpoints that set a single amount.
type amountBody struct {
	Amount float64 `json:"amount"`
}

type settingsBody struct {
	BaseCurrency string `json:"baseCurrency"`
}

type convertBody struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}
