package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"scan-indexer/internal/indexer"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/search"
)

// maxBodyBytes bounds request bodies; filters and server lists are small.
const maxBodyBytes = 1 << 20

// writeJSON writes v with the given status code. Encoding errors are only
// logged since the header is already sent.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeError maps err to a status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, search.ErrInvalidFilters),
		errors.Is(err, search.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, indexer.ErrUnknownServer):
		status = http.StatusNotFound
	case errors.Is(err, indexer.ErrBuildInProgress):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.Error("request failed: %v", err)
	}
	writeJSONError(w, err.Error(), status)
}

var errBadRequest = errors.New("bad request")

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// queryList collects a repeated or comma-separated query parameter.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryBool reads a boolean query parameter; absent or invalid is false.
func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
