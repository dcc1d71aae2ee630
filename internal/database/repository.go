package database

import (
	"context"
	"time"

	"github.com/tappbx/tappbx/internal/database/models"
)

// DomainRepository manages tenants.
type DomainRepository interface {
	Create(ctx context.Context, d *models.Domain) error
	GetByID(ctx context.Context, id string) (*models.Domain, error)
	GetByName(ctx context.Context, name string) (*models.Domain, error)
	List(ctx context.Context) ([]models.Domain, error)
	Update(ctx context.Context, d *models.Domain) error
	Delete(ctx context.Context, id string) error
}

// UserRepository manages per-domain user accounts.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, domainID, username string) (*models.User, error)
	List(ctx context.Context, domainID string) ([]models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id string) error
}

// SettingRepository manages typed settings at all three scopes.
type SettingRepository interface {
	Create(ctx context.Context, s *models.Setting) error
	GetByID(ctx context.Context, id string) (*models.Setting, error)
	List(ctx context.Context, scope string, domainID, userID *string) ([]models.Setting, error)
	// Lookup returns all rows for (category, subcategory) across every
	// scope, ordered by sequence. The resolver applies the scope chain.
	Lookup(ctx context.Context, category, subcategory string) ([]models.Setting, error)
	Update(ctx context.Context, s *models.Setting) error
	Upsert(ctx context.Context, s *models.Setting) error
	Delete(ctx context.Context, id string) error
}

// DialplanRepository manages compiled dialplan records, their typed detail
// rows and the per-tenant exclusion list.
type DialplanRepository interface {
	Create(ctx context.Context, rec *models.DialplanRecord) error
	GetByID(ctx context.Context, id string) (*models.DialplanRecord, error)
	List(ctx context.Context, domainID *string) ([]models.DialplanRecord, error)
	Update(ctx context.Context, rec *models.DialplanRecord) error
	// UpdateXML writes the compiled artifact under an optimistic lock: the
	// update applies only if updated_at still equals seen.
	UpdateXML(ctx context.Context, id, xml string, opaque bool, seen time.Time) error
	SetReloadError(ctx context.Context, id, message string) error
	Delete(ctx context.Context, id string) error

	// ForContext returns the enabled records serving context ctxName for
	// hostname, ordered by sequence then name, with the domain's excluded
	// global dialplans removed.
	ForContext(ctx context.Context, ctxName, hostname string, domainID *string) ([]models.DialplanRecord, error)

	ListDetails(ctx context.Context, recordID string) ([]models.DialplanDetail, error)
	ReplaceDetails(ctx context.Context, recordID string, details []models.DialplanDetail) error

	ListExcludes(ctx context.Context, domainID string) ([]models.DialplanExclude, error)
	AddExclude(ctx context.Context, e *models.DialplanExclude) error
	RemoveExclude(ctx context.Context, id int64) error
}

// ExtensionRepository manages dialable identities and their follow-me legs.
type ExtensionRepository interface {
	Create(ctx context.Context, ext *models.Extension) error
	GetByID(ctx context.Context, id string) (*models.Extension, error)
	GetByNumber(ctx context.Context, domainID, number string) (*models.Extension, error)
	List(ctx context.Context, domainID string) ([]models.Extension, error)
	Update(ctx context.Context, ext *models.Extension) error
	Delete(ctx context.Context, id string) error

	ListFollowMe(ctx context.Context, extensionID string) ([]models.FollowMeDestination, error)
	ReplaceFollowMe(ctx context.Context, extensionID string, dests []models.FollowMeDestination) error
}

// InboundRouteRepository manages inbound routes.
type InboundRouteRepository interface {
	Create(ctx context.Context, r *models.InboundRoute) error
	GetByID(ctx context.Context, id string) (*models.InboundRoute, error)
	List(ctx context.Context, domainID string) ([]models.InboundRoute, error)
	Update(ctx context.Context, r *models.InboundRoute) error
	Delete(ctx context.Context, id string) error
}

// GatewayRepository manages upstream trunks.
type GatewayRepository interface {
	Create(ctx context.Context, g *models.Gateway) error
	GetByID(ctx context.Context, id string) (*models.Gateway, error)
	List(ctx context.Context, domainID string) ([]models.Gateway, error)
	Update(ctx context.Context, g *models.Gateway) error
	Delete(ctx context.Context, id string) error
}

// OutboundRouteRepository manages outbound routes.
type OutboundRouteRepository interface {
	Create(ctx context.Context, r *models.OutboundRoute) error
	GetByID(ctx context.Context, id string) (*models.OutboundRoute, error)
	List(ctx context.Context, domainID string) ([]models.OutboundRoute, error)
	Update(ctx context.Context, r *models.OutboundRoute) error
	Delete(ctx context.Context, id string) error
}

// RingGroupRepository manages ring groups and their child rows.
type RingGroupRepository interface {
	Create(ctx context.Context, rg *models.RingGroup) error
	GetByID(ctx context.Context, id string) (*models.RingGroup, error)
	List(ctx context.Context, domainID string) ([]models.RingGroup, error)
	Update(ctx context.Context, rg *models.RingGroup) error
	Delete(ctx context.Context, id string) error

	ListDestinations(ctx context.Context, ringGroupID string) ([]models.RingGroupDestination, error)
	ReplaceDestinations(ctx context.Context, ringGroupID string, dests []models.RingGroupDestination) error
	ListUsers(ctx context.Context, ringGroupID string) ([]models.RingGroupUser, error)
	ReplaceUsers(ctx context.Context, ringGroupID string, users []models.RingGroupUser) error
}

// IVRMenuRepository manages IVR menus and their digit bindings.
type IVRMenuRepository interface {
	Create(ctx context.Context, m *models.IVRMenu) error
	GetByID(ctx context.Context, id string) (*models.IVRMenu, error)
	List(ctx context.Context, domainID string) ([]models.IVRMenu, error)
	Update(ctx context.Context, m *models.IVRMenu) error
	Delete(ctx context.Context, id string) error

	ListOptions(ctx context.Context, menuID string) ([]models.IVRMenuOption, error)
	ReplaceOptions(ctx context.Context, menuID string, opts []models.IVRMenuOption) error
}

// TimeConditionRepository manages time conditions.
type TimeConditionRepository interface {
	Create(ctx context.Context, tc *models.TimeCondition) error
	GetByID(ctx context.Context, id string) (*models.TimeCondition, error)
	List(ctx context.Context, domainID string) ([]models.TimeCondition, error)
	Update(ctx context.Context, tc *models.TimeCondition) error
	Delete(ctx context.Context, id string) error
}

// CallFlowRepository manages call-flow toggles.
type CallFlowRepository interface {
	Create(ctx context.Context, cf *models.CallFlow) error
	GetByID(ctx context.Context, id string) (*models.CallFlow, error)
	GetByExtension(ctx context.Context, domainID, extension string) (*models.CallFlow, error)
	List(ctx context.Context, domainID string) ([]models.CallFlow, error)
	Update(ctx context.Context, cf *models.CallFlow) error
	SetStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
}

// ConferenceCentreRepository manages conference centres.
type ConferenceCentreRepository interface {
	Create(ctx context.Context, cc *models.ConferenceCentre) error
	GetByID(ctx context.Context, id string) (*models.ConferenceCentre, error)
	List(ctx context.Context, domainID string) ([]models.ConferenceCentre, error)
	Update(ctx context.Context, cc *models.ConferenceCentre) error
	Delete(ctx context.Context, id string) error
}

// QueueRepository manages call-centre queues, agents and tiers.
type QueueRepository interface {
	Create(ctx context.Context, q *models.Queue) error
	GetByID(ctx context.Context, id string) (*models.Queue, error)
	List(ctx context.Context, domainID string) ([]models.Queue, error)
	Update(ctx context.Context, q *models.Queue) error
	Delete(ctx context.Context, id string) error

	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context, domainID string) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, a *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	ListTiers(ctx context.Context, queueID string) ([]models.Tier, error)
	AddTier(ctx context.Context, t *models.Tier) error
	UpdateTier(ctx context.Context, t *models.Tier) error
	RemoveTier(ctx context.Context, queueID, agentID string) error
}

// SwitchVariableRepository manages the switch's boot-time variables.
type SwitchVariableRepository interface {
	Create(ctx context.Context, v *models.SwitchVariable) error
	GetByID(ctx context.Context, id string) (*models.SwitchVariable, error)
	List(ctx context.Context) ([]models.SwitchVariable, error)
	ListEnabled(ctx context.Context, hostname string) ([]models.SwitchVariable, error)
	Upsert(ctx context.Context, v *models.SwitchVariable) error
	Update(ctx context.Context, v *models.SwitchVariable) error
	Delete(ctx context.Context, id string) error
}

// ACLRepository manages access-control lists.
type ACLRepository interface {
	Create(ctx context.Context, a *models.ACL) error
	GetByName(ctx context.Context, name string) (*models.ACL, error)
	List(ctx context.Context) ([]models.ACL, error)
	Delete(ctx context.Context, id string) error

	ListNodes(ctx context.Context, aclID string) ([]models.ACLNode, error)
	ReplaceNodes(ctx context.Context, aclID string, nodes []models.ACLNode) error
}

// FirewallRepository is the cache of truth for admitted addresses. Upsert
// reports whether a new row was created; only then does the reconciler run
// the kernel mutation.
type FirewallRepository interface {
	Upsert(ctx context.Context, address, family, list string, now time.Time) (created bool, err error)
	Get(ctx context.Context, address, list string) (*models.FirewallAddress, error)
	ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error)
	MarkObsolete(ctx context.Context, olderThan time.Time) (int64, error)
	Delete(ctx context.Context, address, list string) error
}

// HTTAPISessionRepository manages per-call HTTAPI sessions.
type HTTAPISessionRepository interface {
	GetOrCreate(ctx context.Context, sessionID, name string) (*models.HTTAPISession, bool, error)
	Get(ctx context.Context, sessionID string) (*models.HTTAPISession, error)
	SetScratch(ctx context.Context, sessionID, scratch string) error
	Delete(ctx context.Context, sessionID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// DeviceRepository manages provisionable devices, their child rows, device
// profiles and contacts.
type DeviceRepository interface {
	Create(ctx context.Context, d *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	GetByMAC(ctx context.Context, domainID, mac string) (*models.Device, error)
	List(ctx context.Context, domainID string) ([]models.Device, error)
	Update(ctx context.Context, d *models.Device) error
	MarkProvisioned(ctx context.Context, id, method, ip string, at time.Time) error
	Delete(ctx context.Context, id string) error

	ListLines(ctx context.Context, deviceID string) ([]models.DeviceLine, error)
	ReplaceLines(ctx context.Context, deviceID string, lines []models.DeviceLine) error
	ListKeys(ctx context.Context, deviceID string) ([]models.DeviceKey, error)
	ReplaceKeys(ctx context.Context, deviceID string, keys []models.DeviceKey) error
	ListSettings(ctx context.Context, deviceID string) ([]models.DeviceSetting, error)
	ReplaceSettings(ctx context.Context, deviceID string, settings []models.DeviceSetting) error

	CreateProfile(ctx context.Context, p *models.DeviceProfile) error
	GetProfile(ctx context.Context, id string) (*models.DeviceProfile, error)
	ListProfiles(ctx context.Context, domainID string) ([]models.DeviceProfile, error)
	DeleteProfile(ctx context.Context, id string) error
	ListProfileSettings(ctx context.Context, profileID string) ([]models.DeviceProfileSetting, error)
	ReplaceProfileSettings(ctx context.Context, profileID string, settings []models.DeviceProfileSetting) error

	ListContacts(ctx context.Context, domainID string) ([]models.Contact, error)
}

// LoginAttemptRepository counts authentication failures per source address.
type LoginAttemptRepository interface {
	Increment(ctx context.Context, address string, now time.Time) (attempts int, err error)
	Reset(ctx context.Context, address string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
