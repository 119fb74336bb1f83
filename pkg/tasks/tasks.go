// Package tasks defines the structures for tasks sent over Kafka.
package tasks

// ProgramIngestTask asks the consumer to ingest one uploaded program PDF
// from object storage.
type ProgramIngestTask struct {
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	PartyCode  string `json:"party_code"`
	Year       int    `json:"year"`
	Force      bool   `json:"force"`
}
