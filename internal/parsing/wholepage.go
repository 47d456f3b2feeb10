// Package parsing turns the upstream model's semi-structured, Chinese-
// language critique text into strongly typed results. Every field has a
// documented default; the parser never fails — a malformed or partial
// reply still yields a usable result.
package parsing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ocx/inkgrade/internal/gradetypes"
)

var (
	overviewRe = regexp.MustCompile(`共识别\s*(\d+)\s*个汉字(?:[（(]\s*(\d+)\s*行\s*(\d+)\s*列[)）])?\s*[:：]\s*([^\n]*)`)
	pageScoreRe = regexp.MustCompile(`结构[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*笔画[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*综合[:：]\s*(-?\d+)\s*分`)
	problemHeaderRe = regexp.MustCompile(`\d+[.、]\s*[「"']([^」"']+)[」"']\s*[（(]\s*(?:第\s*(\d+)\s*行第\s*(\d+)\s*列\s*[,，]\s*)?综合\s*(-?\d+)\s*分\s*[)）]`)
	charStructureRe = regexp.MustCompile(`结构[（(]\s*(-?\d+)\s*分[)）]\s*[:：]\s*([^\n]*)`)
	charStrokeRe    = regexp.MustCompile(`笔画[（(]\s*(-?\d+)\s*分[)）]\s*[:：]\s*([^\n]*)`)
	suggestionRe    = regexp.MustCompile(`建议[:：]\s*([^\n]*)`)
)

const (
	defaultScore          = 60
	defaultSummary         = "继续加油练习！"
	defaultCharComment    = "暂无分析"
	defaultSuggestion     = "多加练习"
	maxSummaryLen          = 200
)

// WholePage parses a whole-page critique into a BatchResult skeleton.
// TaskID, ImageID, ProcessingTimeMs and CreatedAt are left zero — the
// caller (GradingEngine) fills those in after parsing.
func WholePage(text string) gradetypes.BatchResult {
	var result gradetypes.BatchResult

	if m := overviewRe.FindStringSubmatch(text); m != nil {
		result.TotalCharacters = atoiOr(m[1], 0)
		result.GridRows = atoiOr(m[2], 0)
		result.GridCols = atoiOr(m[3], 0)
	}

	result.AvgStructureScore, result.AvgStrokeScore, result.AvgOverallScore = defaultScore, defaultScore, defaultScore
	if m := pageScoreRe.FindStringSubmatch(text); m != nil {
		result.AvgStructureScore = atoiOr(m[1], defaultScore)
		result.AvgStrokeScore = atoiOr(m[2], defaultScore)
		result.AvgOverallScore = atoiOr(m[3], defaultScore)
	}

	result.SummaryComment = extractSummary(text)
	result.Analyses = extractProblemChars(text)

	return clampBatch(result)
}

func extractSummary(text string) string {
	idx := strings.Index(text, "【总评】")
	if idx < 0 {
		return defaultSummary
	}
	start := idx + len("【总评】")
	rest := text[start:]
	if next := strings.Index(rest, "【"); next >= 0 {
		rest = rest[:next]
	}
	summary := strings.TrimSpace(rest)
	if summary == "" {
		return defaultSummary
	}
	if r := []rune(summary); len(r) > maxSummaryLen {
		summary = string(r[:maxSummaryLen])
	}
	return summary
}

func extractProblemChars(text string) []gradetypes.CharAnalysis {
	headerIdx := problemHeaderRe.FindAllStringSubmatchIndex(text, -1)
	if len(headerIdx) == 0 {
		return nil
	}

	summaryIdx := strings.Index(text, "【总评】")

	analyses := make([]gradetypes.CharAnalysis, 0, len(headerIdx))
	for i, loc := range headerIdx {
		blockEnd := len(text)
		if i+1 < len(headerIdx) {
			blockEnd = headerIdx[i+1][0]
		}
		if summaryIdx >= 0 && summaryIdx < blockEnd {
			blockEnd = summaryIdx
		}
		block := text[loc[1]:blockEnd]

		m := problemHeaderRe.FindStringSubmatch(text[loc[0]:loc[1]])
		a := gradetypes.CharAnalysis{
			CharIndex:      i,
			RecognizedChar: m[1],
			Row:            atoiOr(m[2], 0),
			Column:         atoiOr(m[3], 0),
			OverallScore:   atoiOr(m[4], defaultScore),
			StructureScore: defaultScore,
			StrokeScore:    defaultScore,
			StructureComment: defaultCharComment,
			StrokeComment:    defaultCharComment,
			Suggestion:       defaultSuggestion,
		}

		if sm := charStructureRe.FindStringSubmatch(block); sm != nil {
			a.StructureScore = atoiOr(sm[1], defaultScore)
			a.StructureComment = strings.TrimSpace(sm[2])
		}
		if sm := charStrokeRe.FindStringSubmatch(block); sm != nil {
			a.StrokeScore = atoiOr(sm[1], defaultScore)
			a.StrokeComment = strings.TrimSpace(sm[2])
		}
		if sm := suggestionRe.FindStringSubmatch(block); sm != nil {
			if v := strings.TrimSpace(sm[1]); v != "" {
				a.Suggestion = v
			}
		}
		a.OverallComment = a.StructureComment

		analyses = append(analyses, a)
	}
	return analyses
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// clampBatch clamps every score to [0,100] at the DTO boundary. The
// parser itself accepts whatever integer the model emits.
func clampBatch(r gradetypes.BatchResult) gradetypes.BatchResult {
	r.AvgStructureScore = clamp(r.AvgStructureScore)
	r.AvgStrokeScore = clamp(r.AvgStrokeScore)
	r.AvgOverallScore = clamp(r.AvgOverallScore)
	for i := range r.Analyses {
		r.Analyses[i].StructureScore = clamp(r.Analyses[i].StructureScore)
		r.Analyses[i].StrokeScore = clamp(r.Analyses[i].StrokeScore)
		r.Analyses[i].OverallScore = clamp(r.Analyses[i].OverallScore)
	}
	return r
}
