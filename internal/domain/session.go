package domain

// Session is the authenticated identity and token state for the current
// user. It is created on successful login or token refresh, mutated only by
// the session manager, and destroyed on logout or refresh failure. A non-nil
// Session always carries a non-empty AccessToken.
type Session struct {
	User         User
	AccessToken  string
	RefreshToken string
}

// ChannelState describes the lifecycle of the realtime connection owned by a
// session.
type ChannelState string

const (
	ChannelDisconnected ChannelState = "DISCONNECTED"
	ChannelConnecting   ChannelState = "CONNECTING"
	ChannelConnected    ChannelState = "CONNECTED"
	ChannelReconnecting ChannelState = "RECONNECTING"
)
