// Package signal provides the bidirectional message channel to the
// coordination server. It implements a websocket client with typed
// message dispatch and the wire shapes of the coordination protocol.
package signal
