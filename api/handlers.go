package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/jmcleod/suilink/dispatch"
)

// maxRequestBody bounds a dispatch request. Custom transactions are the
// largest payload.
const maxRequestBody = 1 << 20

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Dispatch runs one tagged request and answers with its envelope. The HTTP
// status is 200 whenever an envelope is produced; only unreadable or
// untagged bodies get 400.
func (a *API) Dispatch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	resp := a.dispatcher.DispatchJSON(r.Context(), raw)
	a.auditResponse(r, resp)
	if resp.Type == "" {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// State is a GET shortcut for a GET_STATE request.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	state, err := a.dispatcher.State(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dispatch.Response{Type: dispatch.TypeGetState, OK: true, Data: state})
}

func (a *API) auditResponse(r *http.Request, resp dispatch.Response) {
	event, ok := auditEvents[resp.Type]
	if !ok {
		return
	}
	if resp.OK {
		a.audit.log(event.success, r, slog.String("type", string(resp.Type)))
		return
	}
	a.audit.logFailure(event.failure, r, resp.Error,
		slog.String("type", string(resp.Type)), slog.String("code", resp.Code))
}
