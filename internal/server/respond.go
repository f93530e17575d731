package server

import (
	"encoding/json"
	"net/http"

	"github.com/nsyy/eye-pacs/internal/common"
)

// Envelope codes the clinic front end checks.
const (
	CodeOK    = 20000
	CodeError = 50000
)

type envelope struct {
	Code int    `json:"code"`
	Res  string `json:"res"`
	Data any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, res string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: CodeOK, Res: res, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), envelope{Code: CodeError, Res: err.Error()})
}
