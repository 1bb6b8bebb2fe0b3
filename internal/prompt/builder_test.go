package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildZooContainsThemeTitleAndVocabulary(t *testing.T) {
	p := Build("zoo", "动物世界")

	assert.Contains(t, p, "《zoo》")
	assert.Contains(t, p, "《动物世界》")
	for _, word := range []string{"shī zi 狮子", "dòng wù yuán 动物园", "lǎo hǔ 老虎", "wū guī 乌龟", "lóng zi 笼子"} {
		assert.Contains(t, p, word)
	}
	assert.Contains(t, p, "shī zi 狮子, dà xiàng 大象, hóu zi 猴子, dòng wù yuán 动物园")
	assert.NotContains(t, p, "{{")
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	vocab, variant := Lookup("  Hospital ")
	assert.Equal(t, Variant("hospital"), variant)
	assert.Equal(t, "yī shēng 医生", vocab.Core[0])
}

func TestLookupUnknownThemeFallsBackToDefault(t *testing.T) {
	vocab, variant := Lookup("spaceship")
	assert.Equal(t, VariantDefault, variant)
	assert.Equal(t, "shōu yín yuán 收银员", vocab.Core[0])

	p := Build("spaceship", "太空")
	assert.Contains(t, p, "《spaceship》")
	assert.Contains(t, p, "gòu wù chē 购物车")
}

func TestLookupReturnsCopy(t *testing.T) {
	vocab, _ := Lookup("zoo")
	vocab.Core[0] = "mutated"

	again, _ := Lookup("zoo")
	assert.Equal(t, "shī zi 狮子", again.Core[0])
}

func TestThemesOrder(t *testing.T) {
	got := Themes()
	require.Len(t, got, 10)
	assert.Equal(t, "supermarket", got[0])
	assert.Equal(t, "transportation", got[9])
	assert.True(t, IsValidTheme("ZOO"))
	assert.False(t, IsValidTheme("moon"))
}

func TestBuildWithCustomVocabulary(t *testing.T) {
	p := BuildWith("farm", "农场", Vocabulary{
		Core:        []string{"niú 牛"},
		Items:       []string{"yáng 羊"},
		Environment: []string{"tián 田"},
	})
	assert.Contains(t, p, "niú 牛")
	assert.Contains(t, p, "tián 田")
	assert.False(t, strings.Contains(p, "收银员"))
}

func TestBuildBatchPreservesOrder(t *testing.T) {
	prompts := BuildBatch([]Item{{Theme: "zoo", Title: "A"}, {Theme: "park", Title: "B"}})
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "《A》")
	assert.Contains(t, prompts[1], "《B》")
}
