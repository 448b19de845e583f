// health_publisher.go: Mirrors loaded modules into a gRPC health service
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthPublisher reports every loaded module as a SERVING service named
// after the module id, and flips it to NOT_SERVING when the module is
// removed. The overall service ("") stays SERVING.
//
// Example usage:
//
//	srv := health.NewServer()
//	grpc_health_v1.RegisterHealthServer(grpcServer, srv)
//	publisher := modloader.NewHealthPublisher(srv)
//	publisher.Sync(rt)
//	rt.AddListener(publisher.Handle)
type HealthPublisher struct {
	server *health.Server
}

// NewHealthPublisher creates a publisher for server. A nil server creates
// a fresh health.Server.
func NewHealthPublisher(server *health.Server) *HealthPublisher {
	if server == nil {
		server = health.NewServer()
	}
	return &HealthPublisher{server: server}
}

// Server returns the underlying health server.
func (h *HealthPublisher) Server() *health.Server {
	return h.server
}

// Sync publishes every module currently loaded by rt.
func (h *HealthPublisher) Sync(rt *Runtime) {
	for _, m := range rt.LoadedModules() {
		h.server.SetServingStatus(m.ModuleID().String(), grpc_health_v1.HealthCheckResponse_SERVING)
	}
}

// Handle is a RuntimeEventHandler.
func (h *HealthPublisher) Handle(event RuntimeEvent) {
	switch event.Type {
	case EventModuleAdded:
		h.server.SetServingStatus(event.Module.String(), grpc_health_v1.HealthCheckResponse_SERVING)
	case EventModuleRemoved:
		h.server.SetServingStatus(event.Module.String(), grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}
