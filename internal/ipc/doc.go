// Package ipc exposes daemon control over JSON-RPC on a Unix domain
// socket. The CLI is the only intended client; requests map one-to-one
// onto daemon operations.
package ipc
