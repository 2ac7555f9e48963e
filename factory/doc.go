// Package factory turns a transport-kind tag plus a configuration mapping
// into a ready transport.Transport, for both the server and client side of
// a bridge. It is a pure function: (kind, config) -> transport.
package factory
