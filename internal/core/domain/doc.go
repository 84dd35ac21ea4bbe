// Package domain contains the core business entities for Parley:
// embedding vectors, document records, search results, retrieval outcomes,
// and conversation state. It has no dependencies on other packages.
package domain
