package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type AnalysisStatus string

const (
	AnalysisQueued  AnalysisStatus = "queued"
	AnalysisRunning AnalysisStatus = "running"
	AnalysisReady   AnalysisStatus = "ready"
	AnalysisFailed  AnalysisStatus = "failed"
)

type AnalysisType string

const (
	AnalysisPCA        AnalysisType = "pca"
	AnalysisStatistics AnalysisType = "statistics"
)

// ParseAnalysisType accepts analysis names case-insensitively.
func ParseAnalysisType(raw string) (AnalysisType, bool) {
	switch AnalysisType(strings.ToLower(strings.TrimSpace(raw))) {
	case AnalysisPCA:
		return AnalysisPCA, true
	case AnalysisStatistics:
		return AnalysisStatistics, true
	default:
		return "", false
	}
}

// AnalysisJob is a background analysis request and, once processed, its result.
type AnalysisJob struct {
	ID          string          `json:"id"`
	ImageID     string          `json:"image_id"`
	Type        AnalysisType    `json:"analysis_type"`
	NComponents int             `json:"n_components,omitempty"`
	Status      AnalysisStatus  `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AnalysisRequest holds the parameters for scheduling a background analysis.
type AnalysisRequest struct {
	Type        AnalysisType
	NComponents int
}
