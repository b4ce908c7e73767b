// Package listener provides the callback registries used by routers and
// connections.
//
// A callback is registered through a *Listener handle. Handles give every
// registration a stable identity, so adding the same handle twice keeps one
// registration and removing an unknown handle does nothing.
package listener
