package connectivity

import "time"

// Class is the discretized connection-quality tier used to gate
// sync-critical behavior.
type Class int

const (
	ClassOffline Class = iota
	ClassWeak
	ClassStrong
)

func (c Class) String() string {
	switch c {
	case ClassStrong:
		return "strong"
	case ClassWeak:
		return "weak"
	default:
		return "offline"
	}
}

// LinkType identifies the physical link the device is attached to.
type LinkType string

const (
	LinkWifi       LinkType = "wifi"
	LinkEthernet   LinkType = "ethernet"
	LinkCellular5G LinkType = "cellular_5g"
	LinkCellular4G LinkType = "cellular_4g"
	LinkCellular3G LinkType = "cellular_3g"
	LinkUnknown    LinkType = "unknown"
)

// staticEstimates maps a link type to a conservative throughput guess, used
// only when no active probe measurement is available.
var staticEstimates = map[LinkType]float64{
	LinkEthernet:   100,
	LinkWifi:       30,
	LinkCellular5G: 50,
	LinkCellular4G: 10,
	LinkCellular3G: 1,
	LinkUnknown:    0,
}

// StaticEstimate returns the table throughput guess for a link type.
func StaticEstimate(link LinkType) float64 {
	return staticEstimates[link]
}

// Sample is a point-in-time network assessment.
type Sample struct {
	Reachable     bool
	EstimatedMbps *float64
	Link          LinkType
	SampledAt     time.Time
}

// Classify derives the quality class from an estimated throughput. A missing
// measurement or an unreachable network classifies as offline.
func Classify(mbps *float64, reachable bool, weak, strong float64) Class {
	if !reachable || mbps == nil {
		return ClassOffline
	}
	switch {
	case *mbps >= strong:
		return ClassStrong
	case *mbps >= weak:
		return ClassWeak
	default:
		return ClassOffline
	}
}
