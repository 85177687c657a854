package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

type APIError struct {
	Detail string `json:"detail"`
}

func writeMultipartError(w http.ResponseWriter, err error, maxSize int64) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, fileTooLargeMessage(maxSize), http.StatusBadRequest)

	case errors.Is(err, http.ErrNotMultipart):
		writeJSONError(w, "invalid content type, expected multipart/form-data", http.StatusBadRequest)

	default:
		writeJSONError(w, "invalid multipart upload: "+err.Error(), http.StatusBadRequest)
	}
}

func fileTooLargeMessage(maxSize int64) string {
	return fmt.Sprintf("File size exceeds the %s limit!", humanSize(maxSize))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, APIError{Detail: message}, code)
}

// isText reports whether the sniffed content is plain text, which every CSV
// is. It catches binaries uploaded with a text/csv part header.
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}
