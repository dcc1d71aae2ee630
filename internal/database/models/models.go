// Package models holds the plain data structs persisted by the database
// package. No behaviour lives here; compilation and rendering logic belongs
// to the packages that consume these records.
package models

import "time"

// Setting scopes.
const (
	ScopeGlobal = "global"
	ScopeDomain = "domain"
	ScopeUser   = "user"
)

// Setting value types.
const (
	TypeText    = "text"
	TypeNumeric = "numeric"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeCode    = "code"
	TypeUUID    = "uuid"
	TypeName    = "name"
	TypeDir     = "dir"
)

// Dialplan application categories.
const (
	AppGeneric          = "generic"
	AppInboundRoute     = "inbound-route"
	AppOutboundRoute    = "outbound-route"
	AppTimeCondition    = "time-condition"
	AppRingGroup        = "ring-group"
	AppIVRMenu          = "ivr-menu"
	AppCallFlow         = "call-flow"
	AppConferenceCentre = "conference-centre"
	AppCallCentreQueue  = "call-centre-queue"
)

// Firewall address lists. The set is closed; the reconciler rejects others.
const (
	ListBlock       = "block"
	ListWhite       = "white"
	ListSIPCustomer = "sip-customer"
	ListSIPGateway  = "sip-gateway"
	ListWebBlock    = "web-block"
)

// Firewall address states.
const (
	AddressActive   = "active"
	AddressObsolete = "obsolete"
)

// Domain is a tenant: a namespace carrying its own extensions, dialplan
// records, users and provisioning. Name is globally unique and immutable.
type Domain struct {
	ID          string
	Name        string
	Enabled     bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is a per-domain account. Admin users authenticate against the admin
// action surface; ordinary users anchor user-scope settings and device links.
type User struct {
	ID           string
	DomainID     string
	Username     string
	PasswordHash string
	Email        string
	IsAdmin      bool
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Setting is a typed configuration tuple at one of three scopes. DomainID is
// set for domain scope, UserID (and DomainID) for user scope.
type Setting struct {
	ID          string
	Scope       string
	DomainID    *string
	UserID      *string
	Category    string
	Subcategory string
	Type        string
	Value       string
	Sequence    int
	Enabled     bool
	Description string
	UpdatedAt   time.Time
}

// DialplanRecord is a compiled routing unit. XML is either empty or a
// well-formed <extension> element whose uuid attribute equals ID and whose
// first destination_number condition matches Number. Opaque marks records
// whose XML did not survive a bytewise round trip through the inverse
// compiler; those are edited as raw XML.
type DialplanRecord struct {
	ID              string
	DomainID        *string // nil for global dialplans
	AppID           string  // stable identifier of the owning application category
	Category        string
	Name            string
	Number          string
	Context         string
	Continue        bool
	Sequence        int
	Enabled         bool
	Hostname        *string // nil = any switch node
	XML             string
	Opaque          bool
	LastReloadError string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DialplanDetail is one typed row of a generic dialplan record. Tag is
// condition, action or anti-action.
type DialplanDetail struct {
	ID       int64
	RecordID string
	Group    int
	Tag      string
	Type     string
	Data     string
	Break    string
	Inline   bool
	Sequence int
}

// DialplanExclude suppresses one global dialplan for one tenant.
type DialplanExclude struct {
	ID       int64
	DomainID string
	AppID    string
	Name     string
}

// Extension is a dialable identity within a domain.
type Extension struct {
	ID             string
	DomainID       string
	Extension      string
	CallerIDName   string
	CallerIDNumber string
	UserID         *string
	CallTimeout    int
	FollowMe       bool
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FollowMeDestination is one leg of an extension's follow-me list.
type FollowMeDestination struct {
	ID          int64
	ExtensionID string
	Destination string
	Delay       int
	Timeout     int
	Prompt      bool
	Sequence    int
}

// InboundRoute matches a dialed number arriving from the public context and
// hands the call to a terminating action.
type InboundRoute struct {
	ID            string
	DomainID      string
	DialplanID    string
	Name          string
	Prefix        string
	Number        string // destination pattern before normalisation
	Context       string
	CIDNamePrefix string
	Record        bool
	AccountCode   string
	App           string
	Data          string
	Sequence      int
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Gateway is an upstream trunk referenced by outbound routes. Type is
// bridge, transfer or enum.
type Gateway struct {
	ID        string
	DomainID  string
	Name      string
	Type      string
	Prefix    string
	Proxy     string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboundRoute selects up to three gateways for a dialed pattern.
type OutboundRoute struct {
	ID          string
	DomainID    string
	DialplanID  string
	Name        string
	Number      string // dial pattern (already a regex)
	Gateway1ID  *string
	Gateway2ID  *string
	Gateway3ID  *string
	TollAllow   string
	AccountCode string
	Limit       int
	PINRequired bool
	Sequence    int
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ring group strategies.
const (
	StrategySimultaneous = "simultaneous"
	StrategySequence     = "sequence"
	StrategyEnterprise   = "enterprise"
	StrategyRollover     = "rollover"
	StrategyRandom       = "random"
)

// RingGroup dials a set of destinations together under a strategy.
type RingGroup struct {
	ID             string
	DomainID       string
	DialplanID     string
	Name           string
	Extension      string
	Context        string
	Strategy       string
	CallTimeout    int
	Ringback       string
	Greeting       string
	FollowMe       bool
	CIDNamePrefix  string
	TimeoutApp     string
	TimeoutData    string
	MissedCallApp  string
	MissedCallData string
	Forward        bool
	ForwardTarget  string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RingGroupDestination is one leg of a ring group.
type RingGroupDestination struct {
	ID          int64
	RingGroupID string
	Number      string
	Delay       int
	Timeout     int
	Prompt      bool
	PromptFile  string
	PromptKey   string
	Sequence    int
}

// RingGroupUser links a user to a ring group for missed-call notification
// and presence.
type RingGroupUser struct {
	ID          int64
	RingGroupID string
	UserID      string
}

// IVRMenu is a digit-collection menu mapping digits to actions.
type IVRMenu struct {
	ID                string
	DomainID          string
	DialplanID        string
	Name              string
	Extension         string
	Context           string
	GreetLong         string
	GreetShort        string
	InvalidSound      string
	ExitSound         string
	Timeout           int
	InterDigitTimeout int
	MaxFailures       int
	MaxTimeouts       int
	DigitLen          int
	TTSEngine         string
	TTSVoice          string
	DirectDial        bool
	Ringback          string
	ExitApp           string
	ExitData          string
	Enabled           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IVRMenuOption binds one digit sequence to an action.
type IVRMenuOption struct {
	ID       int64
	MenuID   string
	Digits   string
	App      string
	Data     string
	Sequence int
}

// TimeCondition routes by time match blocks. Settings is a JSON array of
// match blocks; each block is a conjunction of match fields plus a
// terminating action.
type TimeCondition struct {
	ID          string
	DomainID    string
	DialplanID  string
	Name        string
	Extension   string
	Context     string
	Settings    string // JSON array of match blocks
	DefaultApp  string
	DefaultData string
	Sequence    int
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CallFlow is a two-state toggle (day/night) flipped by a feature code.
type CallFlow struct {
	ID          string
	DomainID    string
	DialplanID  string
	Name        string
	Extension   string
	FeatureCode string
	Context     string
	Status      string // "true" = primary state
	PIN         string
	AppA        string
	DataA       string
	AppB        string
	DataB       string
	Sound       string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConferenceCentre is a dial-in conference room group.
type ConferenceCentre struct {
	ID         string
	DomainID   string
	DialplanID string
	Name       string
	Extension  string
	Context    string
	Greeting   string
	PINLength  int
	Record     bool
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Queue is a call-centre queue served by tiers of agents.
type Queue struct {
	ID                    string
	DomainID              string
	DialplanID            string
	Name                  string
	Extension             string
	Context               string
	Strategy              string
	MOHSound              string
	RecordTemplate        string
	TimeBaseScore         string
	MaxWaitTime           int
	MaxWaitTimeNoAgent    int
	TierRulesApply        bool
	TierRuleWaitSecond    int
	DiscardAbandonedAfter int
	AnnounceSound         string
	AnnounceFrequency     int
	Enabled               bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Agent is a call-centre agent.
type Agent struct {
	ID                string
	DomainID          string
	Name              string
	Type              string // "callback" or "uuid-standby"
	Contact           string
	Status            string
	MaxNoAnswer       int
	WrapUpTime        int
	RejectDelayTime   int
	BusyDelayTime     int
	NoAnswerDelayTime int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Tier places an agent in a queue at a level and position.
type Tier struct {
	ID       int64
	QueueID  string
	AgentID  string
	Level    int
	Position int
}

// SwitchVariable is one row of the switch's boot-time variable include file.
type SwitchVariable struct {
	ID          string
	Category    string
	Name        string
	Value       string
	Command     string // "set" or "exec-set"
	Hostname    *string
	Enabled     bool
	Sequence    int
	Description string
	UpdatedAt   time.Time
}

// ACL is a named access-control list with a default policy.
type ACL struct {
	ID      string
	Name    string
	Default string // "allow" or "deny"
}

// ACLNode is one ordered entry of an ACL.
type ACLNode struct {
	ID          int64
	ACLID       string
	Type        string // "allow" or "deny"
	CIDR        string
	Domain      string
	Description string
	Sequence    int
}

// FirewallAddress is the cache-of-truth row for one admitted address.
type FirewallAddress struct {
	ID        int64
	Address   string
	Family    string // "ipv4" or "ipv6"
	List      string
	FirstSeen time.Time
	LastSeen  time.Time
	Status    string
}

// HTTAPISession tracks one in-progress switch dialog on the HTTAPI surface.
type HTTAPISession struct {
	ID        int64
	SessionID string
	Name      string
	Scratch   string // JSON scratch map
	CreatedAt time.Time
}

// Device is a provisionable endpoint. (DomainID, MAC) is unique; MAC is
// stored normalised as AA:BB:CC:DD:EE:FF.
type Device struct {
	ID                string
	DomainID          string
	MAC               string
	Label             string
	Vendor            string
	TemplatePath      string
	UserID            *string
	ProfileID         *string
	AltID             *string // alternate-identity pointer, followed one hop
	Enabled           bool
	ProvisionedAt     *time.Time
	ProvisionedMethod string
	ProvisionedIP     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DeviceLine is one registration line of a device.
type DeviceLine struct {
	ID            int64
	DeviceID      string
	LineNumber    int
	DisplayName   string
	AuthID        string
	Password      string
	ServerAddress string
	Port          int
	Transport     string
	Enabled       bool
}

// DeviceKey is one programmable key of a device. Category is line, memory,
// programmable or expansion-1 through expansion-6.
type DeviceKey struct {
	ID       int64
	DeviceID string
	Category string
	KeyID    int
	Type     string
	Value    string
	Label    string
}

// DeviceSetting is one vendor-specific key/value override on a device.
type DeviceSetting struct {
	ID       int64
	DeviceID string
	Name     string
	Value    string
	Enabled  bool
}

// DeviceProfile is a reusable device template.
type DeviceProfile struct {
	ID        string
	DomainID  string
	Name      string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceProfileSetting is one key/value of a device profile.
type DeviceProfileSetting struct {
	ID        int64
	ProfileID string
	Name      string
	Value     string
	Enabled   bool
}

// Contact is a phone-book entry rendered into device directories.
type Contact struct {
	ID       string
	DomainID string
	UserID   *string
	Name     string
	Number   string
}

// LoginAttempt counts authentication failures per source address.
type LoginAttempt struct {
	ID       int64
	Address  string
	Attempts int
	LastAt   time.Time
}
