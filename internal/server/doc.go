// Package server exposes the streaming session over the network: a UDP
// listener for TLV audio datagrams and a gin HTTP API with session control,
// transcript export, Server-Sent Events, WebSocket streaming and Prometheus
// metrics.
package server
