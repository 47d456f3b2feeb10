package parsing

import (
	"regexp"
	"strings"

	"github.com/ocx/inkgrade/internal/gradetypes"
)

var (
	recognizedCharRe = regexp.MustCompile(`字[:：]\s*(\S)`)
	fiveScoresRe     = regexp.MustCompile(`结构[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*笔画[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*重心[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*间架[:：]\s*(-?\d+)\s*分\s*[|│｜]\s*综合[:：]\s*(-?\d+)\s*分`)
)

const maxSectionLen = 500

var sectionTitles = []string{"结构分析", "笔画分析", "重心分析", "间架分析", "总评", "练习建议"}

// SingleChar parses a single-character critique into a SingleCharResult
// skeleton; TaskID, ProcessingTimeMs and CreatedAt are filled by the
// caller after parsing.
func SingleChar(text string) gradetypes.SingleCharResult {
	var r gradetypes.SingleCharResult

	r.RecognizedChar = "?"
	if m := recognizedCharRe.FindStringSubmatch(text); m != nil {
		r.RecognizedChar = m[1]
	}

	r.StructureScore, r.StrokeScore, r.BalanceScore, r.SpacingScore, r.OverallScore =
		defaultScore, defaultScore, defaultScore, defaultScore, defaultScore
	if m := fiveScoresRe.FindStringSubmatch(text); m != nil {
		r.StructureScore = atoiOr(m[1], defaultScore)
		r.StrokeScore = atoiOr(m[2], defaultScore)
		r.BalanceScore = atoiOr(m[3], defaultScore)
		r.SpacingScore = atoiOr(m[4], defaultScore)
		r.OverallScore = atoiOr(m[5], defaultScore)
	}

	sections := make(map[string]string, len(sectionTitles))
	for _, title := range sectionTitles {
		sections[title] = extractSection(text, title)
	}

	r.StructureDetail = sections["结构分析"]
	r.StrokeDetail = sections["笔画分析"]
	r.BalanceDetail = sections["重心分析"]
	r.SpacingDetail = sections["间架分析"]
	r.OverallComment = sections["总评"]
	r.Suggestion = sections["练习建议"]

	return clampSingle(r)
}

func extractSection(text, title string) string {
	marker := "【" + title + "】"
	idx := strings.Index(text, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]
	if next := strings.Index(rest, "【"); next >= 0 {
		rest = rest[:next]
	}
	detail := strings.TrimSpace(rest)
	if r := []rune(detail); len(r) > maxSectionLen {
		detail = string(r[:maxSectionLen])
	}
	return detail
}

func clampSingle(r gradetypes.SingleCharResult) gradetypes.SingleCharResult {
	r.StructureScore = clamp(r.StructureScore)
	r.StrokeScore = clamp(r.StrokeScore)
	r.BalanceScore = clamp(r.BalanceScore)
	r.SpacingScore = clamp(r.SpacingScore)
	r.OverallScore = clamp(r.OverallScore)
	return r
}
