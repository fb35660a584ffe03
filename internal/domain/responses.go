package domain

// RootResponse is returned by the liveness endpoint
type RootResponse struct {
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string      `json:"status"`
	FirmwareRoot string      `json:"firmware_root"`
	ChipCount    int         `json:"chip_count"`
	CacheStats   *CacheStats `json:"cache_stats,omitempty"`
	Mirror       *MirrorInfo `json:"mirror,omitempty"`
}

// MirrorInfo describes the git repository backing the firmware root
type MirrorInfo struct {
	RepoURL    string `json:"repo_url"`
	Branch     string `json:"branch"`
	CommitSHA  string `json:"commit_sha"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	Syncing    bool   `json:"syncing"`
}

// CacheStats contains descriptor cache statistics
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	HitRate  float64 `json:"hit_rate"`
}

// PingResponse represents the ping response
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
