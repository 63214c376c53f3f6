// Package server is the connection core of ezcd. A Master accepts
// connections and a fixed pool of workers serves them, one request per
// connection.
//
// Architecture:
//   - Master: owns the listeners, an accept goroutine per listener, the
//     accept rate limiter and the queue of accepted sockets
//   - Worker: pulls a socket, reads one request, dispatches it to the
//     Protocol the listener speaks and closes the connection
//   - Protocol: per-connection message object (HTTP, SOAP/HTTP, IGRS) made
//     by a Factory and released after the connection is closed
package server

// Listeners come from two places:
//
//   - server.listeners in the configuration file
//   - the socket table kept in NVRAM (ezcfg_socket.*), edited at runtime
//     through the insertSocket/removeSocket operations
//
// Reload reconciles the open listeners against both sources, so a socket
// inserted over SOAP becomes active on the next reload (SIGUSR1 or
// POST /admin/reload).
//
// Usage:
//
//   handler := nvramrpc.NewHandler(store, logger)
//   m := server.NewMaster(&cfg.Server, server.NewFactory(handler, cfg.SOAP.MaxElements), store, logger)
//   if err := m.Start(ctx); err != nil {
//       ...
//   }
//   defer m.Stop(shutdownCtx)
