package dialplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

// Refresher re-renders the stored XML of records whose compiled form embeds
// resolved settings: IVR menus carry the language triple, conference
// centres and call flows carry the httapi URL. The reload coordinator runs
// it when one of those settings changes, so the stored artifacts stop
// serving the old values.
type Refresher struct {
	compiler    *Compiler
	dialplans   database.DialplanRepository
	domains     database.DomainRepository
	menus       database.IVRMenuRepository
	conferences database.ConferenceCentreRepository
	callFlows   database.CallFlowRepository
	logger      *slog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(
	compiler *Compiler,
	dialplans database.DialplanRepository,
	domains database.DomainRepository,
	menus database.IVRMenuRepository,
	conferences database.ConferenceCentreRepository,
	callFlows database.CallFlowRepository,
	logger *slog.Logger,
) *Refresher {
	return &Refresher{
		compiler:    compiler,
		dialplans:   dialplans,
		domains:     domains,
		menus:       menus,
		conferences: conferences,
		callFlows:   callFlows,
		logger:      logger.With("subsystem", "dialplan-refresh"),
	}
}

// RecompileSettingsDependent re-renders every settings-dependent record of
// one tenant, or of all tenants when domainID is empty. Per-record
// failures are logged and folded into the returned error; the pass keeps
// going so one broken record cannot pin every other record to stale
// settings.
func (f *Refresher) RecompileSettingsDependent(ctx context.Context, domainID string) error {
	doms, err := f.targetDomains(ctx, domainID)
	if err != nil {
		return err
	}

	var errs []error
	refreshed := 0
	for _, dom := range doms {
		tenant := Tenant{ID: dom.ID, Name: dom.Name}

		menus, err := f.menus.List(ctx, dom.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing ivr menus for %s: %w", dom.Name, err))
		}
		for i := range menus {
			if !menus[i].Enabled {
				continue
			}
			xml := f.compiler.CompileIVR(ctx, &menus[i], tenant)
			if err := f.save(ctx, menus[i].DialplanID, xml); err != nil {
				errs = append(errs, fmt.Errorf("ivr menu %s: %w", menus[i].ID, err))
				continue
			}
			refreshed++
		}

		centres, err := f.conferences.List(ctx, dom.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing conference centres for %s: %w", dom.Name, err))
		}
		for i := range centres {
			if !centres[i].Enabled {
				continue
			}
			xml := f.compiler.CompileConference(ctx, &centres[i], tenant)
			if err := f.save(ctx, centres[i].DialplanID, xml); err != nil {
				errs = append(errs, fmt.Errorf("conference centre %s: %w", centres[i].ID, err))
				continue
			}
			refreshed++
		}

		flows, err := f.callFlows.List(ctx, dom.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing call flows for %s: %w", dom.Name, err))
		}
		for i := range flows {
			if !flows[i].Enabled {
				continue
			}
			xml := f.compiler.CompileCallFlow(ctx, &flows[i], tenant)
			if err := f.save(ctx, flows[i].DialplanID, xml); err != nil {
				errs = append(errs, fmt.Errorf("call flow %s: %w", flows[i].ID, err))
				continue
			}
			refreshed++
		}
	}

	f.logger.Info("settings-dependent records recompiled",
		"domains", len(doms), "refreshed", refreshed, "failed", len(errs))
	return errors.Join(errs...)
}

func (f *Refresher) targetDomains(ctx context.Context, domainID string) ([]models.Domain, error) {
	if domainID == "" {
		doms, err := f.domains.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing domains: %w", err)
		}
		return doms, nil
	}
	dom, err := f.domains.GetByID(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("loading domain %s: %w", domainID, err)
	}
	if dom == nil {
		return nil, nil
	}
	return []models.Domain{*dom}, nil
}

// save writes the refreshed XML under the record's optimistic lock.
// Missing or opaque records are skipped: opaque XML was imported verbatim
// and is never regenerated.
func (f *Refresher) save(ctx context.Context, dialplanID, xml string) error {
	if dialplanID == "" {
		return nil
	}
	rec, err := f.dialplans.GetByID(ctx, dialplanID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Opaque {
		return nil
	}
	if rec.XML == xml {
		return nil
	}
	return f.dialplans.UpdateXML(ctx, rec.ID, xml, rec.Opaque, rec.UpdatedAt)
}
