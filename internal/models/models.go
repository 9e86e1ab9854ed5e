// Package models defines the data structures used throughout the network summary service.
// It contains the canonical device, port, uplink, topology, time-series and wireless
// records that the normalizers produce and the summary endpoint returns.
package models

import "time"

// DeviceClass is the coarse device category inferred from the model prefix
type DeviceClass string

const (
	ClassSwitch            DeviceClass = "switch"
	ClassAccessPoint       DeviceClass = "accessPoint"
	ClassGateway           DeviceClass = "gateway"
	ClassTeleworkerGateway DeviceClass = "teleworkerGateway"
	ClassCellularGateway   DeviceClass = "cellularGateway"
	ClassOther             DeviceClass = "other"
)

// IsGatewayLike reports whether the class terminates WAN uplinks
func (c DeviceClass) IsGatewayLike() bool {
	return c == ClassGateway || c == ClassTeleworkerGateway || c == ClassCellularGateway
}

// Device reachability states
const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
	DeviceWarning = "warning"
	DeviceUnknown = "unknown"
)

// Port roles
const (
	RoleWAN        = "wan"
	RoleLAN        = "lan"
	RoleManagement = "management"
)

// Normalized port and point states
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
	StatusDegraded     = "degraded"
	StatusUnknown      = "unknown"
)

// Device represents a network device from the vendor inventory
type Device struct {
	Serial         string      `json:"serial"`
	MAC            string      `json:"mac"`
	Model          string      `json:"model"`
	Name           string      `json:"name"`
	ProductType    string      `json:"productType,omitempty"`
	LanIP          string      `json:"lanIp,omitempty"`
	NetworkID      string      `json:"networkId,omitempty"`
	Class          DeviceClass `json:"class"`
	Status         string      `json:"status"` // online, offline, warning, unknown
	LastReportedAt *time.Time  `json:"lastReportedAt,omitempty"`
}

// DisplayName returns the name, falling back to the serial and then the MAC
func (d Device) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Serial != "":
		return d.Serial
	default:
		return d.MAC
	}
}

// Connection describes the remote end of a port and how it was determined
type Connection struct {
	DeviceName   string `json:"deviceName"`
	DeviceSerial string `json:"deviceSerial,omitempty"`
	Port         string `json:"port,omitempty"`
	Source       string `json:"source"` // lldp, gap-rule, model-table
	Tooltip      string `json:"tooltip"`
}

// PortUsage is traffic on a port in Kbps
type PortUsage struct {
	DownKbps float64 `json:"downKbps"`
	UpKbps   float64 `json:"upKbps"`
}

// Port is the canonical record for one physical (or synthetic WAN) port on a device
type Port struct {
	DeviceSerial string      `json:"deviceSerial"`
	PortID       string      `json:"portId"`
	Name         string      `json:"name,omitempty"`
	Enabled      bool        `json:"enabled"`
	Role         string      `json:"role"`   // wan, lan, management
	Status       string      `json:"status"` // connected, disconnected, disabled, unknown
	HasCarrier   bool        `json:"hasCarrier"`
	SpeedMbps    float64     `json:"speedMbps,omitempty"`
	SpeedLabel   string      `json:"speedLabel,omitempty"`
	Duplex       string      `json:"duplex,omitempty"`
	VLAN         string      `json:"vlan,omitempty"`
	Type         string      `json:"type,omitempty"` // access, trunk
	PoEEnabled   bool        `json:"poeEnabled"`
	PoEUsageW    float64     `json:"poeUsageW,omitempty"`
	Usage        *PortUsage  `json:"usage,omitempty"`
	Comment      string      `json:"comment,omitempty"`
	Uplink       string      `json:"uplink,omitempty"`
	Synthetic    bool        `json:"synthetic,omitempty"`
	ConnectedTo  *Connection `json:"connectedTo,omitempty"`
}

// Uplink represents a WAN-facing link owned by a gateway device
type Uplink struct {
	Serial       string   `json:"serial"`
	Interface    string   `json:"interface"`
	Status       string   `json:"status"`
	RawStatus    string   `json:"rawStatus,omitempty"`
	IP           string   `json:"ip,omitempty"`
	PublicIP     string   `json:"publicIp,omitempty"`
	Gateway      string   `json:"gateway,omitempty"`
	PrimaryDNS   string   `json:"primaryDns,omitempty"`
	SecondaryDNS string   `json:"secondaryDns,omitempty"`
	LossPercent  *float64 `json:"lossPercent,omitempty"`
	LatencyMs    *float64 `json:"latencyMs,omitempty"`
	JitterMs     *float64 `json:"jitterMs,omitempty"`
	PortID       string   `json:"portId,omitempty"`
}

// Topology sources
const (
	TopologyPrimary  = "primary"
	TopologyFallback = "fallback"
	TopologyEmpty    = "empty"
)

// Link origins
const (
	OriginPrimary  = "primary"
	OriginNeighbor = "neighbor"
	OriginAnchor   = "anchor"
)

// TopologyNode is one device in the topology graph
type TopologyNode struct {
	ID        string      `json:"id"`
	Label     string      `json:"label"`
	Serial    string      `json:"serial,omitempty"`
	MAC       string      `json:"mac,omitempty"`
	Model     string      `json:"model,omitempty"`
	Class     DeviceClass `json:"class"`
	Status    string      `json:"status"`
	Synthetic bool        `json:"synthetic,omitempty"`
}

// TopologyLink is an undirected edge between two nodes
type TopologyLink struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Status     string `json:"status"` // active, degraded, down, unknown
	Origin     string `json:"origin"` // primary, neighbor, anchor
	SourcePort string `json:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty"`
}

// Topology is the node/edge graph of a network
type Topology struct {
	Nodes []TopologyNode `json:"nodes"`
	Links []TopologyLink `json:"links"`
}

// Point is one sample of an uplink series
type Point struct {
	Timestamp    time.Time `json:"ts"`
	Status       string    `json:"status"`
	LossPercent  *float64  `json:"lossPercent,omitempty"`
	LatencyMs    *float64  `json:"latencyMs,omitempty"`
	JitterMs     *float64  `json:"jitterMs,omitempty"`
	SentKbps     *float64  `json:"sentKbps,omitempty"`
	ReceivedKbps *float64  `json:"receivedKbps,omitempty"`
	Synthetic    bool      `json:"synthetic,omitempty"`
}

// Outage is a contiguous disconnected run in a series
type Outage struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// Series is the ordered history of one device interface
type Series struct {
	Key           string   `json:"key"`
	Serial        string   `json:"serial"`
	Interface     string   `json:"interface"`
	Points        []Point  `json:"points"`
	Outages       []Outage `json:"outages"`
	OutageCount   int      `json:"outageCount"`
	OutageSeconds float64  `json:"outageSeconds"`
}

// SignalSample is one normalized wireless signal measurement
type SignalSample struct {
	Timestamp   time.Time `json:"ts"`
	Quality     *float64  `json:"quality,omitempty"`
	SNR         *float64  `json:"snr,omitempty"`
	ClientCount *int      `json:"clientCount,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// FailureBucket counts connection failures in one fixed interval
type FailureBucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// SignalStats are aggregate signal quality figures
type SignalStats struct {
	Average     *float64 `json:"average,omitempty"`
	Median      *float64 `json:"median,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Latest      *float64 `json:"latest,omitempty"`
	SampleCount int      `json:"sampleCount"`
}

// AccessPointSignal is the per access point wireless summary
type AccessPointSignal struct {
	Serial           string          `json:"serial"`
	Name             string          `json:"name"`
	Model            string          `json:"model,omitempty"`
	Status           string          `json:"status"`
	Source           string          `json:"source"` // history, clients, aggregate, none
	Stats            SignalStats     `json:"stats"`
	MicroDrops       int             `json:"microDrops"`
	MicroDropSeconds float64         `json:"microDropSeconds"`
	Samples          []SignalSample  `json:"samples"`
	FailureCount     int             `json:"failureCount"`
	FailureHistory   []FailureBucket `json:"failureHistory"`
	ConnectedPort    string          `json:"connectedPort,omitempty"`
	ConnectedVia     string          `json:"connectedVia,omitempty"`
}

// WirelessBlock groups access point signal summaries with the network aggregate
type WirelessBlock struct {
	AccessPoints     []AccessPointSignal `json:"accessPoints"`
	NetworkAggregate *SignalStats        `json:"networkAggregate,omitempty"`
	FailureCount     int                 `json:"failureCount"`
}

// SwitchDetail is a switch with its canonical ports
type SwitchDetail struct {
	Device      Device `json:"device"`
	Ports       []Port `json:"ports"`
	PortCount   int    `json:"portCount"`
	ActivePorts int    `json:"activePorts"`
}

// ApplianceDetail is a gateway with uplinks, ports and health series
type ApplianceDetail struct {
	Device       Device      `json:"device"`
	Uplinks      []Uplink    `json:"uplinks"`
	Ports        []Port      `json:"ports"`
	UplinkSeries []Series    `json:"uplinkSeries"`
	Security     interface{} `json:"security,omitempty"`
	Performance  interface{} `json:"performance,omitempty"`
}

// NetworkInfo identifies the network and its organization
type NetworkInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId"`
	TimeZone       string `json:"timeZone,omitempty"`
}

// DeviceCounts is the device mix of a network
type DeviceCounts struct {
	Total        int `json:"total"`
	Switches     int `json:"switches"`
	AccessPoints int `json:"accessPoints"`
	Gateways     int `json:"gateways"`
	Other        int `json:"other"`
}

// SummaryMeta carries timing and classification metadata
type SummaryMeta struct {
	RequestID   string       `json:"requestId"`
	GeneratedAt time.Time    `json:"generatedAt"`
	ElapsedMs   int64        `json:"elapsedMs"`
	Counts      DeviceCounts `json:"counts"`
	Flavor      string       `json:"flavor"`
	Timespan    int          `json:"uplinkTimespan"`
	Resolution  int          `json:"uplinkResolution"`
	Warnings    []string     `json:"warnings"`
}

// Summary is the reconciled view of a network
type Summary struct {
	Network        NetworkInfo       `json:"network"`
	Devices        []Device          `json:"devices"`
	Topology       Topology          `json:"topology"`
	TopologySource string            `json:"topologySource"` // primary, fallback, empty
	Switches       []SwitchDetail    `json:"switches"`
	Appliances     []ApplianceDetail `json:"appliances"`
	Wireless       WirelessBlock     `json:"wireless"`
	Meta           SummaryMeta       `json:"meta"`
}

// SummaryRun is a recorded summary request
type SummaryRun struct {
	ID             int64     `json:"id"`
	NetworkID      string    `json:"networkId"`
	RequestID      string    `json:"requestId"`
	Timestamp      time.Time `json:"timestamp"`
	DurationMs     int64     `json:"durationMs"`
	DeviceCount    int       `json:"deviceCount"`
	TopologySource string    `json:"topologySource"`
	Flavor         string    `json:"flavor"`
	Warnings       int       `json:"warnings"`
	Status         string    `json:"status"` // completed, error
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// Query option bounds, in seconds
const (
	DefaultTimespan   = 86400
	MinTimespan       = 300
	MaxTimespan       = 604800
	DefaultResolution = 300
	MinResolution     = 60
	MaxResolution     = 3600
)

// QueryOptions are the recognized summary request options
type QueryOptions struct {
	UplinkTimespan   int  `json:"uplinkTimespan"`
	UplinkResolution int  `json:"uplinkResolution"`
	ForceRefresh     bool `json:"forceRefresh"`
}

// Normalize applies defaults and clamps values to their allowed ranges
func (q QueryOptions) Normalize() QueryOptions {
	if q.UplinkTimespan <= 0 {
		q.UplinkTimespan = DefaultTimespan
	}
	q.UplinkTimespan = clamp(q.UplinkTimespan, MinTimespan, MaxTimespan)
	if q.UplinkResolution <= 0 {
		q.UplinkResolution = DefaultResolution
	}
	q.UplinkResolution = clamp(q.UplinkResolution, MinResolution, MaxResolution)
	return q
}

// Window returns the requested window duration
func (q QueryOptions) Window() time.Duration {
	return time.Duration(q.UplinkTimespan) * time.Second
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
