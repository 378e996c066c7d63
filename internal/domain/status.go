package domain

import "time"

// SystemStatus is the backend health snapshot shown in the status line and
// system info panel.
type SystemStatus struct {
	ScrapedData    ScrapedDataStatus    `json:"scraped_data" yaml:"scraped_data"`
	VectorDatabase VectorDatabaseStatus `json:"vector_database" yaml:"vector_database"`
	Components     ComponentsStatus     `json:"components" yaml:"components"`
	LLM            LLMStatus            `json:"llm" yaml:"llm"`
	Timestamp      *time.Time           `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type ScrapedDataStatus struct {
	PagesCount         int        `json:"pages_count" yaml:"pages_count"`
	TotalContentLength int        `json:"total_content_length" yaml:"total_content_length"`
	LastScraped        *time.Time `json:"last_scraped,omitempty" yaml:"last_scraped,omitempty"`
}

type VectorDatabaseStatus struct {
	CollectionExists bool       `json:"collection_exists" yaml:"collection_exists"`
	DocumentCount    int        `json:"document_count" yaml:"document_count"`
	ChunkCount       int        `json:"chunk_count" yaml:"chunk_count"`
	LastIngested     *time.Time `json:"last_ingested,omitempty" yaml:"last_ingested,omitempty"`
}

type ComponentsStatus struct {
	CrawlerAvailable bool `json:"crawler_available" yaml:"crawler_available"`
	IngestAvailable  bool `json:"ingest_available" yaml:"ingest_available"`
	ChatAvailable    bool `json:"chat_available" yaml:"chat_available"`
	LLMAvailable     bool `json:"llm_available" yaml:"llm_available"`
}

type LLMStatus struct {
	Mode      string `json:"mode" yaml:"mode"`
	Available bool   `json:"available" yaml:"available"`
}
