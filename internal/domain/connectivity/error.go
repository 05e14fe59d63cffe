package connectivity

import "errors"

var ErrNetworkUnavailable = errors.New("network unavailable")
