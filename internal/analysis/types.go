package analysis

import (
	"fmt"
	"time"
)

// Reading is a single battery observation reported by a handheld device
type Reading struct {
	SiteID     int       `json:"academyId"`
	Level      float64   `json:"batteryLevel"`
	OperatorID string    `json:"employeeId"`
	Serial     string    `json:"serialNumber"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tier is the health classification of a device
type Tier int

const (
	TierUnknown Tier = iota
	TierHealthy
	TierWarning
	TierCritical
)

var tierNames = map[Tier]string{
	TierUnknown:  "unknown",
	TierHealthy:  "healthy",
	TierWarning:  "warning",
	TierCritical: "critical",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// MarshalText encodes the tier by name
func (t Tier) MarshalText() ([]byte, error) {
	name, ok := tierNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a tier name
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts a tier name into a Tier
func ParseTier(name string) (Tier, error) {
	for tier, n := range tierNames {
		if n == name {
			return tier, nil
		}
	}
	return TierUnknown, fmt.Errorf("unknown tier %q", name)
}

// Priority is the visit urgency of a site
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// MarshalText encodes the priority by name
func (p Priority) MarshalText() ([]byte, error) {
	name, ok := priorityNames[p]
	if !ok {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a priority name
func (p *Priority) UnmarshalText(text []byte) error {
	for priority, name := range priorityNames {
		if name == string(text) {
			*p = priority
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", string(text))
}

// DeviceRecord is the derived health of one device
type DeviceRecord struct {
	Serial      string    `json:"serialNumber"`
	Tier        Tier      `json:"status"`
	DailyRate   float64   `json:"dailyUsageRate"`
	LastReading *Reading  `json:"lastReading"`
	Readings    []Reading `json:"readings"`
	SiteID      int       `json:"academyId"`
	OperatorID  string    `json:"employeeId"`
}

// SiteRecord groups the devices of one site with their tier counts
type SiteRecord struct {
	SiteID   int            `json:"academyId"`
	Devices  []DeviceRecord `json:"devices"`
	Critical int            `json:"criticalDevices"`
	Warning  int            `json:"warningDevices"`
	Healthy  int            `json:"healthyDevices"`
	Unknown  int            `json:"unknownDevices"`
	Priority Priority       `json:"priority"`
}

// Totals tallies device tiers across a whole batch
type Totals struct {
	Devices  int `json:"totalDevices"`
	Critical int `json:"totalCritical"`
	Warning  int `json:"totalWarning"`
	Healthy  int `json:"totalHealthy"`
	Unknown  int `json:"totalUnknown"`
}

// Result is the outcome of one analysis run
type Result struct {
	Sites []SiteRecord `json:"schools"`
	Totals
}
