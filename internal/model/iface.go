package model

// RecordSink receives parsed records in input order.
type RecordSink interface {
	Add(record *LogRecord)
}

// RecordWriter provides append-oriented writes of parsed records.
type RecordWriter interface {
	InsertRecordBatch(records []*LogRecord) error
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}
