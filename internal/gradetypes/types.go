// Package gradetypes holds the grading request/result data model shared
// by the engine, the parser, the grid cropper and the result store, kept
// separate so those packages can depend on the shapes without depending
// on each other.
package gradetypes

// BatchResult is the whole-page grading outcome.
type BatchResult struct {
	TaskID             string         `json:"taskId"`
	ImageID            string         `json:"imageId"`
	TotalCharacters    int            `json:"totalCharacters"`
	GridRows           int            `json:"gridRows"`
	GridCols           int            `json:"gridCols"`
	Analyses           []CharAnalysis `json:"analyses"`
	AvgStructureScore  int            `json:"avgStructureScore"`
	AvgStrokeScore     int            `json:"avgStrokeScore"`
	AvgOverallScore    int            `json:"avgOverallScore"`
	SummaryComment     string         `json:"summaryComment"`
	ProcessingTimeMs   int64          `json:"processingTimeMs"`
	CreatedAt          string         `json:"createdAt"`
}

// CharAnalysis is one problem character called out in a whole-page critique.
type CharAnalysis struct {
	CharIndex        int    `json:"charIndex"`
	RecognizedChar   string `json:"recognizedChar"`
	Row              int    `json:"row"`    // 1-based; 0 means unknown
	Column           int    `json:"column"` // 1-based; 0 means unknown
	StructureScore   int    `json:"structureScore"`
	StructureComment string `json:"structureComment"`
	StrokeScore      int    `json:"strokeScore"`
	StrokeComment    string `json:"strokeComment"`
	OverallScore     int    `json:"overallScore"`
	OverallComment   string `json:"overallComment"`
	Suggestion       string `json:"suggestion"`
	CharImageBase64  string `json:"charImageBase64,omitempty"`
}

// SingleCharResult is the single-character grading outcome.
type SingleCharResult struct {
	TaskID           string `json:"taskId"`
	RecognizedChar   string `json:"recognizedChar"`
	StructureScore   int    `json:"structureScore"`
	StructureDetail  string `json:"structureDetail"`
	StrokeScore      int    `json:"strokeScore"`
	StrokeDetail     string `json:"strokeDetail"`
	BalanceScore     int    `json:"balanceScore"`
	BalanceDetail    string `json:"balanceDetail"`
	SpacingScore     int    `json:"spacingScore"`
	SpacingDetail    string `json:"spacingDetail"`
	OverallScore     int    `json:"overallScore"`
	OverallComment   string `json:"overallComment"`
	Suggestion       string `json:"suggestion"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	CreatedAt        string `json:"createdAt"`
}

// Mode selects which prompt/parser pair a grading task uses.
type Mode string

const (
	ModeWholePage  Mode = "whole-page"
	ModeSingleChar Mode = "single-char"
)

// Task is the transient request-scoped unit of work created at request
// entry and discarded after result delivery or return.
type Task struct {
	TaskID       string
	UserID       *int64
	CopyBookID   *int64
	TemplateID   string
	ImageBytes   []byte
	Mode         Mode
}
