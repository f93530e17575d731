package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/entity"
)

const maxUploadBytes = 64 << 20

// reportView renders report_time in the catalog layout instead of RFC 3339.
type reportView struct {
	entity.Report
	Time string `json:"report_time"`
}

func viewOf(r entity.Report) reportView {
	return reportView{Report: r, Time: r.Time.Format(constants.ReportTimeLayout)}
}

// resolveToken turns a URL path variable into a file path inside the archive.
func (a *API) resolveToken(raw string) (string, error) {
	token, err := url.PathUnescape(raw)
	if err != nil {
		return "", common.NewAppError("INVALID_TOKEN", "malformed report token", common.ErrInvalidInput)
	}
	p := filepath.Clean(archive.DecodePath(token))
	root := filepath.Clean(a.uploads.DestRoot())
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", common.NewAppError("INVALID_TOKEN", "report path is outside the archive", common.ErrInvalidInput)
	}
	return p, nil
}

func (a *API) serveReport(w http.ResponseWriter, r *http.Request) {
	p, err := a.resolveToken(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, common.NewAppError("REPORT_NOT_FOUND", "report file not found", common.ErrNotFound))
			return
		}
		writeError(w, common.WrapError(err, "open report"))
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		writeError(w, common.NewAppError("REPORT_NOT_FOUND", "report file not found", common.ErrNotFound))
		return
	}
	if constants.IsPDF(fi.Name()) {
		w.Header().Set("Content-Type", "application/pdf")
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": fi.Name()}))
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

type bindRequest struct {
	ReportID   string `json:"report_id"`
	RegisterID string `json:"register_id"`
	PatientID  string `json:"patient_id"`
}

// decodeParams fills dst from a JSON body, falling back to query and form
// values for GET and form posts.
func decodeParams(r *http.Request, dst any, keys map[string]*string) error {
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return common.NewAppError("INVALID_BODY", "invalid JSON body", common.ErrInvalidInput)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return common.NewAppError("INVALID_BODY", "invalid form body", common.ErrInvalidInput)
	}
	for k, v := range keys {
		*v = r.Form.Get(k)
	}
	return nil
}

func (a *API) bindReport(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := decodeParams(r, &req, map[string]*string{
		"report_id":   &req.ReportID,
		"register_id": &req.RegisterID,
		"patient_id":  &req.PatientID,
	}); err != nil {
		writeError(w, err)
		return
	}

	v := common.NewValidator().
		Field("report_id", req.ReportID, common.Required, common.UUID).
		Field("register_id", req.RegisterID, common.MaxLength(64)).
		Field("patient_id", req.PatientID, common.MaxLength(64))
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, err)
		return
	}

	id := uuid.MustParse(req.ReportID)
	if err := a.repo.Bind(r.Context(), id, req.RegisterID, req.PatientID); err != nil {
		common.LoggerFrom(r.Context(), a.logger).Warn("bind report failed", "report_id", id, "error", err)
		writeError(w, err)
		return
	}
	writeOK(w, "success", nil)
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFrom(r.Context(), a.logger)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, common.NewAppError("NO_FILE", "No file part", common.ErrInvalidInput))
		return
	}
	defer file.Close()
	if hdr.Filename == "" {
		writeError(w, common.NewAppError("NO_FILE", "No selected file", common.ErrInvalidInput))
		return
	}

	registerID := r.FormValue("register_id")
	patientID := r.FormValue("patient_id")
	v := common.NewValidator().
		Field("filename", hdr.Filename, common.NoPathSeparator, common.MaxLength(255)).
		Field("register_id", registerID, common.MaxLength(64)).
		Field("patient_id", patientID, common.MaxLength(64))
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, err)
		return
	}

	row, err := a.uploads.Save(hdr.Filename, file)
	if err != nil {
		logger.Error("failed to store upload", "filename", hdr.Filename, "error", err)
		writeError(w, err)
		return
	}
	if registerID != "" {
		row.RegisterID = &registerID
		row.PatientID = &patientID
	}
	if err := a.repo.Create(r.Context(), row); err != nil {
		_ = os.Remove(archive.DecodePath(row.Addr))
		logger.Error("failed to catalog upload", "filename", hdr.Filename, "error", err)
		writeError(w, err)
		return
	}
	logger.Info("report uploaded", "report_id", row.ID, "name", row.Name)
	writeOK(w, "File uploaded successfully", viewOf(row))
}

func (a *API) queryReports(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegisterID string `json:"register_id"`
	}
	if err := decodeParams(r, &req, map[string]*string{"register_id": &req.RegisterID}); err != nil {
		writeError(w, err)
		return
	}

	rows, err := a.repo.ListByRegister(r.Context(), req.RegisterID)
	if err != nil {
		common.LoggerFrom(r.Context(), a.logger).Warn("query reports failed", "register_id", req.RegisterID, "error", err)
		writeError(w, err)
		return
	}

	list := make([]reportView, 0, len(rows))
	for _, row := range rows {
		list = append(list, viewOf(row))
	}
	data := map[string]any{"report_list": list}
	for k, v := range Summarize(rows, a.logger) {
		data[k] = v
	}
	writeOK(w, fmt.Sprintf("%d reports", len(list)), data)
}
