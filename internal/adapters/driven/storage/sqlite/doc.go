// Package sqlite provides read-only access to the pre-ingested document
// database. The chunk table is written by an external ingestion process;
// Parley only scans it.
package sqlite
