package leoapitest

import "leo-chat/internal/domain"

// SampleGuide is the backend's data download guide.
func SampleGuide() domain.NavigationGuide {
	return domain.NavigationGuide{
		Query:      "how do I download INSAT-3D data",
		Intent:     "download",
		Confidence: 0.75,
		Goal:       "Download satellite data from MOSDAC",
		Steps: []domain.NavigationStep{
			{
				Index:                1,
				PageURL:              "/",
				PageTitle:            "MOSDAC Home",
				Description:          "Start from MOSDAC homepage",
				Action:               "Navigate to homepage and locate the main navigation menu",
				ExpectedElements:     []string{"navigation_menu", "services_section"},
				EstimatedTimeSeconds: 5,
			},
			{
				Index:                2,
				PageURL:              "/data-download",
				PageTitle:            "Data Download",
				Description:          "Access the data download section",
				Action:               "Click on 'Data Download' or 'Services' → 'Data Download'",
				ExpectedElements:     []string{"satellite_selector", "date_picker"},
				EstimatedTimeSeconds: 10,
			},
		},
		EstimatedTimeSeconds: 15,
		Difficulty:           "Medium",
		SuccessRate:          0.85,
		QuickTips: []string{
			"Ensure you have sufficient storage space before downloading large datasets",
			"Check data availability for your desired date range first",
		},
		AlternativePaths: []string{"Use the API for programmatic downloads"},
	}
}

// SampleStatus is a healthy /status body.
func SampleStatus() map[string]any {
	return map[string]any{
		"scraped_data": map[string]any{
			"pages_count":          42,
			"total_content_length": 123456,
			"last_scraped":         "2024-05-01T10:00:00",
			"data_path":            "./data",
		},
		"vector_database": map[string]any{
			"collection_exists": true,
			"document_count":    1200,
			"chunk_count":       5400,
			"last_ingested":     "2024-05-01T11:30:00.123456",
		},
		"components": map[string]any{
			"crawler_available": true,
			"ingest_available":  true,
			"chat_available":    true,
			"llm_available":     true,
		},
		"llm": map[string]any{
			"mode":      "ollama",
			"available": true,
		},
		"system": map[string]any{
			"memory_usage_mb":    512.5,
			"cpu_percent":        12.0,
			"disk_usage_percent": 40.0,
			"uptime_seconds":     3600.0,
		},
		"timestamp": "2024-05-01T12:00:00Z",
	}
}
