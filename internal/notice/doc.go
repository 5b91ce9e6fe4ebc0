// Package notice provides the types shared by the collection pipeline and the
// field-level change detection used to reconcile scraped notices.
//
// A notice moves through three shapes: RawRecord (text cells lifted from a
// portal listing), NormalizedRecord (typed candidate keyed by notice number)
// and Notice (the durable row owned by storage). DetectChanges compares a
// stored Notice with a fresh candidate through an explicit per-field table.
package notice
