// Package mesh defines the interfaces MeshGate expects from the underlying
// publish/subscribe transport.
//
// The transport is an external collaborator: an existing DDS-like mesh that
// provides a participant, per-topic typed readers and writers, destructive
// take, and an asynchronous sample-arrival notification mechanism. This
// package pins down only the surface the gateway consumes; the wire protocol
// behind it is out of scope.
//
// Samples cross this boundary in the mesh's typed representation (Sample and
// Value), not as loose field maps. The gateway's topic codec converts between
// the two, driven by the topic's schema descriptor.
package mesh
