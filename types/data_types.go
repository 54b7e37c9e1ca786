package types

import (
	"time"
)

type DataType string

const (
	Null     DataType = "null"
	Integer  DataType = "integer"
	Number   DataType = "number"
	String   DataType = "string"
	Boolean  DataType = "boolean"
	DateTime DataType = "date-time"
	Object   DataType = "object"
	Array    DataType = "array"
)

func (d DataType) Valid() bool {
	switch d {
	case Integer, Number, String, Boolean, DateTime, Object, Array:
		return true
	default:
		return false
	}
}

type SyncMode string

const (
	FULLREFRESH SyncMode = "full_refresh"
	INCREMENTAL SyncMode = "incremental"
)

// Record is one transformed resource instance.
type Record map[string]any

// RawRecord is a record tagged with its owning stream, as handed to a writer.
type RawRecord struct {
	Stream    string    `json:"stream"`
	Namespace string    `json:"namespace"`
	RecordID  string    `json:"_record_id"`
	Timestamp time.Time `json:"_extracted_at"`
	Data      Record    `json:"data"`
}

func CreateRawRecord(stream *StreamDefinition, recordID string, data Record) RawRecord {
	return RawRecord{
		Stream:    stream.Name,
		Namespace: stream.Namespace,
		RecordID:  recordID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
