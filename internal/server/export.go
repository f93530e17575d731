package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nsyy/eye-pacs/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, common.NewAppError("INVALID_DATE", fmt.Sprintf("invalid date %q", s), common.ErrInvalidInput)
	}
	return &t, nil
}

func (a *API) export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		writeError(w, common.NewAppError("INVALID_DATE", "to is before from", common.ErrInvalidInput))
		return
	}

	data, err := a.exporter.ExportReportsXLSX(r.Context(), from, to)
	if err != nil {
		common.LoggerFrom(r.Context(), a.logger).Error("export failed", "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="ehp-reports.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
