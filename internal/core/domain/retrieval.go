package domain

// DocumentRef records the provenance of a document included in a context window.
type DocumentRef struct {
	// ID is the document record identifier.
	ID string

	// Similarity is the score the record matched with.
	Similarity float64

	// Collection is the record's collection label, if any.
	Collection string
}

// RetrievalOutcome is the result of one retrieve call: the assembled context
// window plus provenance for the documents that made it in.
type RetrievalOutcome struct {
	// Context is the trimmed concatenation of selected document contents.
	Context string

	// ContextLength is the character length of Context.
	ContextLength int

	// DocumentsUsed lists the documents actually included, in rank order.
	DocumentsUsed []DocumentRef

	// TotalDocumentsFound counts results returned by the similarity search
	// before truncation to the context budget.
	TotalDocumentsFound int
}
