package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/wrenshaw/cartledger/internal/platform/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the structured error code to an HTTP status and renders
// the code, message, and metadata so clients never have to parse prose.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	detail := errorDetail{Code: string(code), Message: err.Error()}

	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		detail.Message = domainErr.Message
		detail.Metadata = domainErr.Metadata
	}
	writeJSON(w, code.HTTPStatus(), errorBody{Error: detail})
}

// expectedVersion parses the optional If-Match header into an expected
// stream version. Both bare and quoted forms are accepted; weak
// validators (W/"...") are not, since version matching is exact.
// A header that cannot be parsed is a validation failure, not a version
// mismatch: re-reading and retrying the same request can never succeed.
func expectedVersion(r *http.Request) (*uint64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperrors.New(apperrors.CodePayloadInvalid,
			fmt.Sprintf("malformed If-Match header: %q", raw))
	}
	return &version, nil
}

func setVersionETag(w http.ResponseWriter, version uint64) {
	w.Header().Set("ETag", `"`+strconv.FormatUint(version, 10)+`"`)
}
