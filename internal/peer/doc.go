// Package peer negotiates and maintains the single peer media link:
// offer/answer exchange, ICE candidate relay, in-place track
// replacement, and wholesale link replacement on renegotiation.
package peer
