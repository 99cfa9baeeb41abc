package handlers

import (
	"context"
	"net/http"

	"github.com/camden-git/imageindex/workers"
)

// ScanController is the scanner surface exposed over HTTP.
type ScanController interface {
	ForceFullScan(ctx context.Context) (int, error)
	Prune(ctx context.Context) (int, error)
	Status() workers.ScanStatus
}

type ScanHandler struct {
	Scanner ScanController
}

// TriggerScan runs a full pass and replies once it has finished.
func (sh *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	processed, err := sh.Scanner.ForceFullScan(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": processed,
		"status":    sh.Scanner.Status(),
	})
}

func (sh *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sh.Scanner.Status())
}

func (sh *ScanHandler) Prune(w http.ResponseWriter, r *http.Request) {
	removed, err := sh.Scanner.Prune(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
