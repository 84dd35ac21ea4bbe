// Package services implements the core application logic: query embedding,
// linear-scan similarity search, context assembly, the retrieval facade,
// and the streaming chat orchestrator.
package services
