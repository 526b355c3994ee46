package model

// IngestEnvelope carries one raw log line with source metadata.
// It is the transport contract between line sources and processing.
type IngestEnvelope struct {
	Source string
	Line   string
	LineNo int

	// Oversize is set when the line exceeded the source's maximum line size.
	// Line is empty in that case.
	Oversize bool
}
