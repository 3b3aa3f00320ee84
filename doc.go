// Package psrouter is the reusable substrate that concrete publish/subscribe
// routing policies (flood-style broadcast, mesh-style gossip, ...) are built
// on top of. It owns the per-peer bidirectional message streams, authenticates
// message origin via signatures, and exposes the registration protocol that
// binds a Router to a host networking node.
//
// psrouter does not itself decide who forwards what to whom — that is the
// job of a RoutingPolicy implementation plugged into a Router.
package psrouter
