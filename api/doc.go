// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package api declares the capability contracts the transport engine
// consumes and exposes. The engine depends only on these interfaces;
// concrete channels (TCP, in-memory, TLS-wrapped), breaker policies and
// executors are supplied by the embedding platform.

package api
