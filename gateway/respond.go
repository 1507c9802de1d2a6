package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sktvault/core"
	coreerrors "sktvault/core/errors"
	"sktvault/core/executor"
	"sktvault/crypto"
	"sktvault/native/common"
	"sktvault/native/raffle"
)

const maxRequestBody = 1 << 20

// apiError is the error body returned to clients. Code carries the stable
// numeric error code when the failure is a domain error.
type apiError struct {
	Code    uint32 `json:"code,omitempty"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// classify maps an error onto an HTTP status and client payload.
func classify(err error) (int, apiError) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, apiError{Name: "BadRequest", Message: strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")}
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, apiError{Name: "ModulePaused", Message: err.Error()}
	case errors.Is(err, executor.ErrClosed), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, apiError{Name: "Unavailable", Message: err.Error()}
	}
	var coded *coreerrors.Error
	if !errors.As(err, &coded) {
		return http.StatusInternalServerError, apiError{Name: "Internal", Message: "internal error"}
	}
	body := apiError{Code: uint32(coded.Code), Name: coded.Code.String(), Message: err.Error()}
	switch {
	case errors.Is(err, coreerrors.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, coreerrors.ErrNotAuthority):
		return http.StatusForbidden, body
	case errors.Is(err, coreerrors.ErrInvalidAmount), errors.Is(err, coreerrors.ErrAuthorityMismatch):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, core.ErrGlobalConfigExists), errors.Is(err, raffle.ErrRaffleExists):
		return http.StatusConflict, body
	}
	switch coded.Code {
	case coreerrors.CodeNotAuthorizedAdmin:
		return http.StatusForbidden, body
	case coreerrors.CodeRafflePriceMismatched, coreerrors.CodeRaffleTokenSPLAddressMismatched, coreerrors.CodeExceedMaxWithdrawAmount:
		return http.StatusUnprocessableEntity, body
	default:
		return http.StatusConflict, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// decode reads a JSON body. An empty body leaves dst untouched.
func decode(r *http.Request, dst interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(data) > maxRequestBody {
		return badRequest("body exceeds %d bytes", maxRequestBody)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

func pathAddress(r *http.Request, name string) ([20]byte, error) {
	raw, err := crypto.ParseRaw(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", name, err)
	}
	return raw, nil
}
