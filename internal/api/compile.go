package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/metrics"
	"github.com/tappbx/tappbx/internal/reload"
)

// compileResult is the JSON body returned by every per-record compile
// action. Detail carries "saved, not reloaded" when the XML was written but
// the switch reload failed.
type compileResult struct {
	DialplanID string `json:"dialplan_id"`
	XML        string `json:"xml"`
	Reloaded   bool   `json:"reloaded"`
	Detail     string `json:"detail,omitempty"`
}

func (s *Server) tenantByID(ctx context.Context, domainID string) (dialplan.Tenant, error) {
	dom, err := s.deps.Domains.GetByID(ctx, domainID)
	if err != nil {
		return dialplan.Tenant{}, err
	}
	if dom == nil {
		return dialplan.Tenant{}, database.ErrNotFound
	}
	return dialplan.Tenant{ID: dom.ID, Name: dom.Name}, nil
}

// saveCompiled writes the compiled XML under the optimistic lock and
// reloads the switch. A reload failure is not an error to the caller: the
// record is saved, the failure recorded against it.
func (s *Server) saveCompiled(ctx context.Context, dialplanID, xml, tenantName string) (compileResult, error) {
	rec, err := s.deps.Dialplans.GetByID(ctx, dialplanID)
	if err != nil {
		return compileResult{}, err
	}
	if rec == nil {
		return compileResult{}, fmt.Errorf("dialplan %s: %w", dialplanID, database.ErrNotFound)
	}
	if err := s.deps.Dialplans.UpdateXML(ctx, rec.ID, xml, rec.Opaque, rec.UpdatedAt); err != nil {
		return compileResult{}, err
	}
	metrics.CompilesTotal.WithLabelValues(rec.AppID).Inc()

	res := compileResult{DialplanID: rec.ID, XML: xml, Reloaded: true}
	if err := s.deps.Reload.FlushAndReload(ctx, reload.ScopeDialplan, tenantName); err != nil {
		slog.Warn("dialplan saved but reload failed", "dialplan_id", rec.ID, "error", err)
		if serr := s.deps.Dialplans.SetReloadError(ctx, rec.ID, err.Error()); serr != nil {
			slog.Error("recording reload error", "dialplan_id", rec.ID, "error", serr)
		}
		res.Reloaded = false
		res.Detail = "saved, not reloaded"
		return res, nil
	}
	if rec.LastReloadError != "" {
		if serr := s.deps.Dialplans.SetReloadError(ctx, rec.ID, ""); serr != nil {
			slog.Error("clearing reload error", "dialplan_id", rec.ID, "error", serr)
		}
	}
	return res, nil
}

// respondCompiled writes the compile result, mapping store errors.
func respondCompiled(w http.ResponseWriter, op string, res compileResult, err error) {
	if err != nil {
		writeStoreError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
