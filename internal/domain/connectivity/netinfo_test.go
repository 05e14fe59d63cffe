package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuessLinkType(t *testing.T) {
	assert.Equal(t, LinkEthernet, guessLinkType("eth0"))
	assert.Equal(t, LinkEthernet, guessLinkType("en0"))
	assert.Equal(t, LinkWifi, guessLinkType("wlan0"))
	assert.Equal(t, LinkWifi, guessLinkType("wifi0"))
	assert.Equal(t, LinkCellular4G, guessLinkType("rmnet_data0"))
	assert.Equal(t, LinkCellular4G, guessLinkType("wwan0"))
	assert.Equal(t, LinkUnknown, guessLinkType("docker0"))
}

func TestStaticEstimates(t *testing.T) {
	assert.Greater(t, StaticEstimate(LinkEthernet), StaticEstimate(LinkWifi))
	assert.Greater(t, StaticEstimate(LinkCellular4G), StaticEstimate(LinkCellular3G))
	assert.Zero(t, StaticEstimate(LinkUnknown))
}
