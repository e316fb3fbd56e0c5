// Package core implements the material lifecycle and bulk import engine.
//
// It tracks physical material units through a fixed fabrication and
// installation lifecycle, accepts spreadsheet-sourced bulk updates, and
// records a field-level audit history for every mutation. The package has
// no HTTP or storage-engine dependencies: persistence goes through the
// Store interface (see internal/store for adapters) and callers supply a
// verified actor identifier.
//
// The two entry points are:
//
//	Service.UpdateStatus  - one guarded status change on one material
//	Service.RunImport     - reconcile a CSV byte stream against a job's
//	                        materials, row by row
//
// Both wrap each material mutation and its history entries in a single
// store transaction: the record change and its audit trail are visible
// together or not at all.
package core
