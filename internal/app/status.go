package app

// SystemStatus aggregates the outward telemetry surface of the engine.
type SystemStatus struct {
	Network NetworkStatus `json:"network"`
	Storage StorageStatus `json:"storage"`
	Queue   QueueStatus   `json:"queue"`
	Cache   CacheStatus   `json:"cache"`
}

type NetworkStatus struct {
	IsOnline       bool   `json:"isOnline"`
	Classification string `json:"classification"`
	Type           string `json:"type"`
}

type StorageStatus struct {
	NamespaceCounts map[string]int `json:"namespaceCounts"`
	SizeBytes       int64          `json:"sizeBytes"`
}

type QueueStatus struct {
	Pending int `json:"pending"`
	Dead    int `json:"dead"`
	Total   int `json:"total"`
}

type CacheStatus struct {
	Entries           int   `json:"entries"`
	OldestEntryAgeSec int64 `json:"oldestEntryAge"`
}
