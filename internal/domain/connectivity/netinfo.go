package connectivity

import (
	"context"
	"net"
	"strings"
)

// InterfaceInfo derives reachability and link type from the OS network
// interfaces: any non-loopback interface that is up and addressed counts as
// reachable.
type InterfaceInfo struct{}

// Current implements NetworkInfo.
func (InterfaceInfo) Current(_ context.Context) (bool, LinkType) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, LinkUnknown
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true, guessLinkType(iface.Name)
	}
	return false, LinkUnknown
}

func guessLinkType(name string) LinkType {
	switch {
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return LinkEthernet
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"):
		return LinkWifi
	case strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ww"):
		return LinkCellular4G
	default:
		return LinkUnknown
	}
}
