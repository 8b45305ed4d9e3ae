// Package schema defines topic descriptors for the MeshGate data plane.
//
// Every topic carried over the mesh has a fixed, versioned schema: an ordered
// list of typed fields, a subset of which are key fields, plus the transport
// quality-of-service profile the topic is created with. Descriptors are
// immutable for the process lifetime and shared by every reader and writer of
// the topic.
//
// The Registry holds the full set of descriptors behind an atomically swapped
// snapshot, so a reload never exposes a half-updated table to concurrent
// lookups.
package schema
