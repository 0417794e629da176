package definition

import "time"

// Default timeouts and periods named in spec §5/§6, collected here so every
// package that needs one reaches for the same constant instead of
// re-deriving it.
const (
	DefaultNoIDTimeout         = 3 * time.Second
	DefaultAliveNotifyPeriod  = 30 * time.Second
	DefaultPendingHandshake   = 30 * time.Second
	DefaultPasswordRetry      = 3 * time.Second
	DefaultRecentlyDisGrace   = 60 * time.Second
	DefaultFlowInfoPeriod     = 2 * time.Second
	DefaultRemoteAddrPort     = 34912
)
