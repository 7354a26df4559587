package handlers

import (
	"io"
	"net/http"

	"github.com/repotorpedo/torpedo/domain"
)

type ImportResponse struct {
	Imported int `json:"imported"`
}

func (a *API) ListHistory() http.HandlerFunc {
	return HandleQuery(func(r *http.Request) ([]HistoryRecordView, error) {
		recs, err := a.services.History.List(r.Context())
		if err != nil {
			return nil, err
		}
		return ConvertHistoryToViews(recs), nil
	}, "list_history")
}

// ExportHistory serves the history in its portable JSON format as a download.
func (a *API) ExportHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := a.services.History.Export(r.Context())
		if err != nil {
			LogOperationError("export_history", "handlers", err)
			WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="torpedo-history.json"`)
		if _, err := w.Write(data); err != nil {
			LogOperationError("export_history_write", "handlers", err)
		}
	}
}

// ImportHistory replaces the history with the uploaded document.
func (a *API) ImportHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			WriteError(w, domain.ValidationError("import history", "could not read upload: %v", err))
			return
		}
		n, err := a.services.History.Import(r.Context(), data)
		if err != nil {
			LogOperationError("import_history", "handlers", err)
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ImportResponse{Imported: n})
	}
}
