// Package session composes the SRRT components around one subscription.
//
// A Session owns one connection identity, created once and handed to every
// component that needs it. Inbound frames flow from the connection manager
// through the frame pipeline into the delivery buffer; the transport
// resolver forces a reopen whenever the base changes. Close tears all of it
// down in one synchronous step.
package session
