package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// DefaultMaxBodySize bounds request bodies for SET and ZADD
const DefaultMaxBodySize = 1 << 20

// Nil is the body written for a missing key
const Nil = "(nil)"

// Backend is the store surface served over HTTP
type Backend interface {
	Set(key, value string)
	SetWithExpiry(key, value string, ttlSeconds int64) error
	Get(key string) (string, error)
	Delete(key string) error
	Size() int
	Increment(key string) (int64, error)
	ZAdd(key, pair string) error
	ZCardinality(key string) int
	ZRank(key, value string) int
	ZRange(key string, start, stop int) []string
	DumpAll() []storage.Entry
	DumpAllRanked() []storage.RankedSet
}

// Handler serves the key-value commands as plain text endpoints
type Handler struct {
	backend Backend
	logger  *zap.SugaredLogger
	metrics http.Handler
	maxBody int64
}

// NewHandler creates a handler. metricsHandler may be nil, in which case
// /metrics is not mounted.
func NewHandler(backend Backend, logger *zap.SugaredLogger, metricsHandler http.Handler) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		backend: backend,
		logger:  logger,
		metrics: metricsHandler,
		maxBody: DefaultMaxBodySize,
	}
}

// SetMaxBodySize sets the largest accepted request body in bytes
func (h *Handler) SetMaxBodySize(n int64) {
	if n > 0 {
		h.maxBody = n
	}
}

// Set handles PUT /{key}
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.backend.Set(chi.URLParam(r, "key"), body)
	writeText(w, http.StatusOK, "OK")
}

// SetWithExpiry handles PUT /{key}/{seconds}
func (h *Handler) SetWithExpiry(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.ParseInt(chi.URLParam(r, "arg"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "ERR expire is not an integer")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if err := h.backend.SetWithExpiry(chi.URLParam(r, "key"), body, seconds); err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// Get handles GET /{key}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	value, err := h.backend.Get(chi.URLParam(r, "key"))
	if errors.Is(err, storage.ErrNotFound) {
		writeText(w, http.StatusOK, Nil)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, value)
}

// Delete handles DELETE /{key}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.backend.Delete(chi.URLParam(r, "key"))
	if errors.Is(err, storage.ErrNotFound) {
		writeText(w, http.StatusOK, Nil)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// Size handles GET /
func (h *Handler) Size(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, strconv.Itoa(h.backend.Size()))
}

// Increment handles PATCH /{key}
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	n, err := h.backend.Increment(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("(integer) %d", n))
}

// ZAdd handles POST /{key} with a member=value body
func (h *Handler) ZAdd(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if err := h.backend.ZAdd(chi.URLParam(r, "key"), body); err != nil {
		h.writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "(integer) 1")
}

// ZCardinality handles GET /zcard/{key}
func (h *Handler) ZCardinality(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, strconv.Itoa(h.backend.ZCardinality(chi.URLParam(r, "key"))))
}

// ZRank handles GET /{key}/{value}
func (h *Handler) ZRank(w http.ResponseWriter, r *http.Request) {
	rank := h.backend.ZRank(chi.URLParam(r, "key"), chi.URLParam(r, "arg"))
	writeText(w, http.StatusOK, strconv.Itoa(rank))
}

// ZRange handles GET /zrange/{key}?start=&stop=
func (h *Handler) ZRange(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := strconv.Atoi(query.Get("start"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "ERR start is not an integer")
		return
	}
	stop, err := strconv.Atoi(query.Get("stop"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "ERR stop is not an integer")
		return
	}

	writeText(w, http.StatusOK, FormatRange(h.backend.ZRange(chi.URLParam(r, "key"), start, stop)))
}

// DumpAll handles GET /all
func (h *Handler) DumpAll(w http.ResponseWriter, r *http.Request) {
	entries := h.backend.DumpAll()

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	h.writeJSON(w, http.StatusOK, out)
}

// DumpAllRanked handles GET /zall
func (h *Handler) DumpAllRanked(w http.ResponseWriter, r *http.Request) {
	sets := h.backend.DumpAllRanked()

	out := make(map[string][]map[string]string, len(sets))
	for _, set := range sets {
		members := make(map[string]string, len(set.Members))
		for _, m := range set.Members {
			members[m.Name] = m.Value
		}
		out[set.Key] = []map[string]string{members}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// FormatRange renders values as a numbered list, one per line:
//
//	1) "a"
//	2) "b"
//
// An empty slice renders as the empty string.
func FormatRange(values []string) string {
	buf := make([]byte, 0, len(values)*8)
	for i, v := range values {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = strconv.AppendInt(buf, int64(i+1), 10)
		buf = append(buf, ") "...)
		buf = strconv.AppendQuote(buf, v)
	}
	return string(buf)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "ERR request body too large")
			return "", false
		}
		h.logger.Warnw("Failed to read request body", "path", r.URL.Path, "error", err)
		writeText(w, http.StatusBadRequest, "ERR failed to read request body")
		return "", false
	}
	return string(body), true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "error", err)
	}
	writeText(w, status, "ERR "+err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotANumber), errors.Is(err, storage.ErrIncrementOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrMalformedInput), errors.Is(err, storage.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("Failed to encode response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
