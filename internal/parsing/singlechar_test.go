package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleSingleChar = `字：永
结构：80分｜笔画：75分｜重心：85分｜间架：78分｜综合：79分
【结构分析】重心略偏右
【笔画分析】撇捺有力
【重心分析】整体稳定
【间架分析】间架合理
【总评】书写工整
【练习建议】多练竖钩`

func TestSingleChar_ParsesAllSections(t *testing.T) {
	r := SingleChar(sampleSingleChar)

	assert.Equal(t, "永", r.RecognizedChar)
	assert.Equal(t, 80, r.StructureScore)
	assert.Equal(t, 75, r.StrokeScore)
	assert.Equal(t, 85, r.BalanceScore)
	assert.Equal(t, 78, r.SpacingScore)
	assert.Equal(t, 79, r.OverallScore)
	assert.Equal(t, "重心略偏右", r.StructureDetail)
	assert.Equal(t, "撇捺有力", r.StrokeDetail)
	assert.Equal(t, "整体稳定", r.BalanceDetail)
	assert.Equal(t, "间架合理", r.SpacingDetail)
	assert.Equal(t, "书写工整", r.OverallComment)
	assert.Equal(t, "多练竖钩", r.Suggestion)
}

func TestSingleChar_EmptyInputFallsBackToDefaults(t *testing.T) {
	r := SingleChar("")

	assert.Equal(t, "?", r.RecognizedChar)
	assert.Equal(t, defaultScore, r.StructureScore)
	assert.Equal(t, defaultScore, r.OverallScore)
	assert.Empty(t, r.StructureDetail)
}

func TestSingleChar_ScoresClampedTo100(t *testing.T) {
	text := `字：永
结构：999分｜笔画：-50分｜重心：50分｜间架：50分｜综合：50分`

	r := SingleChar(text)
	assert.Equal(t, 100, r.StructureScore)
	assert.Equal(t, 0, r.StrokeScore)
}
