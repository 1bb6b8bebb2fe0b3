// Package prompt は識字小報の画像生成プロンプトを組み立てます。
// HTTP サービスとオフライン CLI の両方がこのパッケージを共有します。
package prompt

import (
	"strings"
	"text/template"
)

// Item はバッチ生成の1項目です。
type Item struct {
	Theme string `json:"theme"`
	Title string `json:"title"`
}

const posterTemplate = `请生成一张儿童识字小报《{{.Theme}}》，竖版 A4，学习小报版式，适合 5–9 岁孩子认字与看图识物。

# 一、小报标题区（顶部）

**顶部居中大标题**：《{{.Title}}》
* **风格**：十字小报 / 儿童学习报感
* **文本要求**：大字、醒目、卡通手写体、彩色描边
* **装饰**：周围添加与 {{.Theme}} 相关的贴纸风装饰，颜色鲜艳

# 二、小报主体（中间主画面）

画面中心是一幅 **卡通插画风的「{{.Theme}}」场景**：
* **整体气氛**：明亮、温暖、积极
* **构图**：物体边界清晰，方便对应文字，不要过于拥挤。

**场景分区与核心内容**
1.  **核心区域 A（主要对象）**：表现 {{.Theme}} 的核心活动。
2.  **核心区域 B（配套设施）**：展示相关的工具或物品。
3.  **核心区域 C（环境背景）**：体现环境特征（如墙面、指示牌等）。

**主题人物**
* **角色**：1 位可爱卡通人物（职业/身份：与 {{.Theme}} 匹配）。
* **动作**：正在进行与场景相关的自然互动。

# 三、必画物体与识字清单（Generated Content）

**请务必在画面中清晰绘制以下物体，并为其预留贴标签的位置：**

**1. 核心角色与设施：**
{{join .Vocab.Core}}

**2. 常见物品/工具：**
{{join .Vocab.Items}}

**3. 环境与装饰：**
{{join .Vocab.Environment}}

*(注意：画面中的物体数量不限于此，但以上列表必须作为重点描绘对象)*

# 四、识字标注规则

对上述清单中的物体，贴上中文识字标签：
* **格式**：两行制（第一行拼音带声调，第二行简体汉字）。
* **样式**：彩色小贴纸风格，白底黑字或深色字，清晰可读。
* **排版**：标签靠近对应的物体，不遮挡主体。

# 五、画风参数
* **风格**：儿童绘本风 + 识字小报风
* **色彩**：高饱和、明快、温暖 (High Saturation, Warm Tone)
* **质量**：8k resolution, high detail, vector illustration style, clean lines.`

var tmpl = template.Must(template.New("poster").Funcs(template.FuncMap{
	"join": func(words []string) string { return strings.Join(words, ", ") },
}).Parse(posterTemplate))

type templateData struct {
	Theme string
	Title string
	Vocab Vocabulary
}

// Build はテーマとタイトルからプロンプトを生成します。
func Build(theme, title string) string {
	vocab, _ := Lookup(theme)
	return BuildWith(theme, title, vocab)
}

// BuildWith は任意の語彙でプロンプトを生成します。
func BuildWith(theme, title string, vocab Vocabulary) string {
	var sb strings.Builder
	// テンプレートは固定で、データも文字列のみのため実行エラーは起こらない
	_ = tmpl.Execute(&sb, templateData{Theme: theme, Title: title, Vocab: vocab})
	return sb.String()
}

// BuildBatch は項目ごとのプロンプトを入力順で返します。
func BuildBatch(items []Item) []string {
	prompts := make([]string, len(items))
	for i, item := range items {
		prompts[i] = Build(item.Theme, item.Title)
	}
	return prompts
}
