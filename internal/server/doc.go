// Package server implements the relay's connection, session and broadcast
// core together with its HTTP surface.
//
// The implementation is organized into specialized files: the Hub fans frames
// out to connections, each Client runs read/write pumps for one WebSocket,
// and each Client's Session applies register user and chat message events to
// the shared roster. Configuration, origin checks, routing and metrics live in
// their own files.
package server
