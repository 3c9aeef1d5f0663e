package model

import "time"

// ArchiveOutcome records the result of extracting a single archive.
type ArchiveOutcome struct {
	Archive     string   `json:"archive"`
	ExtractedTo string   `json:"extracted_to"`
	Files       []string `json:"files"`
}

// ExtractionRound records one pass of scanning a directory tree for
// not-yet-processed archives.
type ExtractionRound struct {
	Round         int              `json:"round"`
	ArchivesFound int              `json:"archives_found"`
	Extracted     []ArchiveOutcome `json:"extracted_files"`
	Errors        []string         `json:"errors"`
}

// ExtractionRecord accumulates the full history of a recursive extraction.
// Rounds are appended, never mutated in place.
type ExtractionRecord struct {
	TotalExtracted int               `json:"total_extracted"`
	Rounds         []ExtractionRound `json:"extraction_rounds"`
	Errors         []string          `json:"errors"`
}

// ExtractionLog is the extraction_log.json sidecar document persisted next to
// the attachments it describes.
type ExtractionLog struct {
	EmailUID       string           `json:"email_uid"`
	ExtractionTime time.Time        `json:"extraction_time"`
	Record         ExtractionRecord `json:"extraction_log"`
}
