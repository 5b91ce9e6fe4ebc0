// Package cli implements the command-line interface for bid-scout.
//
// The cli package provides the Cobra-based CLI with commands to run a single
// collection, list stored notices (sorted by creation, opening date or
// number), fetch notice details and documents, and run the collection
// scheduler. Output is text or JSON. It wires config, storage, the portal
// adapters, the reconciler and the notifiers together for each invocation.
package cli
