package dialplan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

type stubDomains struct {
	database.DomainRepository
	doms []models.Domain
}

func (s *stubDomains) List(ctx context.Context) ([]models.Domain, error) {
	return s.doms, nil
}

func (s *stubDomains) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	for i := range s.doms {
		if s.doms[i].ID == id {
			return &s.doms[i], nil
		}
	}
	return nil, nil
}

type stubDialplans struct {
	database.DialplanRepository
	recs    map[string]*models.DialplanRecord
	written map[string]string
}

func (s *stubDialplans) GetByID(ctx context.Context, id string) (*models.DialplanRecord, error) {
	return s.recs[id], nil
}

func (s *stubDialplans) UpdateXML(ctx context.Context, id, xml string, opaque bool, seen time.Time) error {
	if s.written == nil {
		s.written = make(map[string]string)
	}
	s.written[id] = xml
	return nil
}

type stubMenus struct {
	database.IVRMenuRepository
	rows []models.IVRMenu
}

func (s *stubMenus) List(ctx context.Context, domainID string) ([]models.IVRMenu, error) {
	var out []models.IVRMenu
	for _, m := range s.rows {
		if m.DomainID == domainID {
			out = append(out, m)
		}
	}
	return out, nil
}

type stubConferences struct {
	database.ConferenceCentreRepository
	rows []models.ConferenceCentre
}

func (s *stubConferences) List(ctx context.Context, domainID string) ([]models.ConferenceCentre, error) {
	var out []models.ConferenceCentre
	for _, c := range s.rows {
		if c.DomainID == domainID {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubCallFlows struct {
	database.CallFlowRepository
	rows []models.CallFlow
}

func (s *stubCallFlows) List(ctx context.Context, domainID string) ([]models.CallFlow, error) {
	var out []models.CallFlow
	for _, f := range s.rows {
		if f.DomainID == domainID {
			out = append(out, f)
		}
	}
	return out, nil
}

func newTestRefresher(rows []models.Setting, recs map[string]*models.DialplanRecord,
	doms *stubDomains, menus *stubMenus, confs *stubConferences, flows *stubCallFlows) (*Refresher, *stubDialplans) {

	if menus == nil {
		menus = &stubMenus{}
	}
	if confs == nil {
		confs = &stubConferences{}
	}
	if flows == nil {
		flows = &stubCallFlows{}
	}
	dialplans := &stubDialplans{recs: recs}
	compiler := newTestCompiler(rows, nil, nil)
	return NewRefresher(compiler, dialplans, doms, menus, confs, flows, testLogger()), dialplans
}

func TestRecompileSettingsDependentRefreshesStoredXML(t *testing.T) {
	d1 := "t1"
	rows := []models.Setting{
		{Scope: models.ScopeDomain, DomainID: &d1, Category: "domain", Subcategory: "language", Value: "fr", Enabled: true},
		{Scope: models.ScopeGlobal, Category: "switch", Subcategory: "httapi-url", Value: "http://node-2:8080/app/httapi", Enabled: true},
	}
	doms := &stubDomains{doms: []models.Domain{{ID: "t1", Name: "t1.example", Enabled: true}}}
	menus := &stubMenus{rows: []models.IVRMenu{
		{ID: "ivr-1", DomainID: "t1", DialplanID: "dp-1", Name: "day-menu", Extension: "5000", Enabled: true},
	}}
	confs := &stubConferences{rows: []models.ConferenceCentre{
		{ID: "cc-1", DomainID: "t1", DialplanID: "dp-2", Name: "bridge", Extension: "3000", Enabled: true},
	}}
	recs := map[string]*models.DialplanRecord{
		"dp-1": {ID: "dp-1", XML: "<extension/>"},
		"dp-2": {ID: "dp-2", XML: "<extension/>"},
	}

	ref, dialplans := newTestRefresher(rows, recs, doms, menus, confs, nil)
	if err := ref.RecompileSettingsDependent(context.Background(), ""); err != nil {
		t.Fatalf("RecompileSettingsDependent() error: %v", err)
	}

	if got := dialplans.written["dp-1"]; !strings.Contains(got, "default_language=fr") {
		t.Errorf("ivr record not refreshed with new language:\n%s", got)
	}
	if got := dialplans.written["dp-2"]; !strings.Contains(got, "url=http://node-2:8080/app/httapi/conference") {
		t.Errorf("conference record not refreshed with new httapi url:\n%s", got)
	}
}

func TestRecompileSettingsDependentSkipsDisabledAndOpaque(t *testing.T) {
	doms := &stubDomains{doms: []models.Domain{{ID: "t1", Name: "t1.example", Enabled: true}}}
	menus := &stubMenus{rows: []models.IVRMenu{
		{ID: "ivr-off", DomainID: "t1", DialplanID: "dp-off", Extension: "5001", Enabled: false},
		{ID: "ivr-opaque", DomainID: "t1", DialplanID: "dp-opaque", Extension: "5002", Enabled: true},
	}}
	recs := map[string]*models.DialplanRecord{
		"dp-off":    {ID: "dp-off", XML: "<extension/>"},
		"dp-opaque": {ID: "dp-opaque", XML: "<extension/>", Opaque: true},
	}

	ref, dialplans := newTestRefresher(nil, recs, doms, menus, nil, nil)
	if err := ref.RecompileSettingsDependent(context.Background(), "t1"); err != nil {
		t.Fatalf("RecompileSettingsDependent() error: %v", err)
	}
	if len(dialplans.written) != 0 {
		t.Errorf("disabled and opaque records must be left alone, wrote %v", dialplans.written)
	}
}

func TestRecompileSettingsDependentPerTenantLanguages(t *testing.T) {
	d1, d2 := "t1", "t2"
	rows := []models.Setting{
		{Scope: models.ScopeGlobal, Category: "domain", Subcategory: "language", Value: "en", Enabled: true},
		{Scope: models.ScopeDomain, DomainID: &d2, Category: "domain", Subcategory: "language", Value: "fr", Enabled: true},
	}
	doms := &stubDomains{doms: []models.Domain{
		{ID: d1, Name: "t1.example", Enabled: true},
		{ID: d2, Name: "t2.example", Enabled: true},
	}}
	menus := &stubMenus{rows: []models.IVRMenu{
		{ID: "ivr-1", DomainID: d1, DialplanID: "dp-1", Extension: "5000", Enabled: true},
		{ID: "ivr-2", DomainID: d2, DialplanID: "dp-2", Extension: "5000", Enabled: true},
	}}
	recs := map[string]*models.DialplanRecord{
		"dp-1": {ID: "dp-1", XML: "<extension/>"},
		"dp-2": {ID: "dp-2", XML: "<extension/>"},
	}

	ref, dialplans := newTestRefresher(rows, recs, doms, menus, nil, nil)
	if err := ref.RecompileSettingsDependent(context.Background(), ""); err != nil {
		t.Fatalf("RecompileSettingsDependent() error: %v", err)
	}

	if got := dialplans.written["dp-1"]; !strings.Contains(got, "default_language=en") {
		t.Errorf("tenant t1 should compile with its own language:\n%s", got)
	}
	if got := dialplans.written["dp-2"]; !strings.Contains(got, "default_language=fr") {
		t.Errorf("tenant t2 should compile with its own language:\n%s", got)
	}
}
