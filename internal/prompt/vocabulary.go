package prompt

import "strings"

// Vocabulary は1テーマ分の識字語彙です。各語は「拼音 漢字」形式です。
type Vocabulary struct {
	Core        []string `json:"core"`
	Items       []string `json:"items"`
	Environment []string `json:"environment"`
}

// Variant は Lookup がどの語彙を選んだかを表します。
type Variant string

// VariantDefault はテーマが未登録だったときに使われる既定語彙です。
const VariantDefault Variant = "default"

type themeEntry struct {
	key   string
	vocab Vocabulary
}

// themes は登録順を保持します（テーマ一覧の表示順になります）。
var themes = []themeEntry{
	{key: "supermarket", vocab: Vocabulary{
		Core:        []string{"shōu yín yuán 收银员", "huò jià 货架", "gòu wù chē 购物车", "jiǎn suǎn tái 收银台"},
		Items:       []string{"píng guǒ 苹果", "niú nǎi 牛奶", "miàn bāo 面包", "yī fu 衣服", "shuǐ guǒ 水果", "shū cài 蔬菜", "dàn 鸡蛋", "guǒ zhī 果汁"},
		Environment: []string{"chū kǒu 出口", "rù kǒu 入口", "dēng 灯", "qiáng 墙", "zhǐ tiáo 指示牌"},
	}},
	{key: "hospital", vocab: Vocabulary{
		Core:        []string{"yī shēng 医生", "hù shì 护士", "yī yuàn 医院", "bìng chuáng 病床"},
		Items:       []string{"yào 药", "tǐ wēn jǐ 体温计", "tīng zhěn qì 听诊器", "bēng dài 绷带", "yī shǒu zhēn 医用手套", "yào xiāng 药箱", "zhēn 针", "yā suō jǐ 压缩机"},
		Environment: []string{"zhěn shì 诊室", "yào fáng 药房", "zǒu láng 走廊", "mén 门", "chuāng 窗"},
	}},
	{key: "park", vocab: Vocabulary{
		Core:        []string{"shù 树", "huā 花", "cǎo 草", "gōng yuán 公园"},
		Items:       []string{"qiū qiān 秋千", "huá tī 滑梯", "dǎn qiū qiān 荡秋千", "yǐ zi 椅子", "shuǐ chí 水池", "niǎo 鸟", "hú dié 蝴蝶", "qiú 球"},
		Environment: []string{"lù 路", "shān 山", "hé 河", "qiáo 桥", "tiān kōng 天空"},
	}},
	{key: "school", vocab: Vocabulary{
		Core:        []string{"lǎo shī 老师", "xué shēng 学生", "jiào shì 教室", "hēi bǎn 黑板"},
		Items:       []string{"shū 书", "bǐ 笔", "běn zi 本子", "zhuō zi 桌子", "yǐ zi 椅子", "bāo 书包", "chǐ 尺", "xiàng pí 橡皮"},
		Environment: []string{"mén 门", "chuāng 窗", "qiáng 墙", "dēng 灯", "bù 布告栏"},
	}},
	{key: "zoo", vocab: Vocabulary{
		Core:        []string{"shī zi 狮子", "dà xiàng 大象", "hóu zi 猴子", "dòng wù yuán 动物园"},
		Items:       []string{"lǎo hǔ 老虎", "cháng jǐng lù 长颈鹿", "xióng māo 熊猫", "kǒng què 孔雀", "tuó niǎo 鸵鸟", "ping fēn 企鹅", "hǎi tún 海豚", "wū guī 乌龟"},
		Environment: []string{"lóng zi 笼子", "shuǐ chí 水池", "shù 树", "cǎo 草", "lù 路"},
	}},
	{key: "kitchen", vocab: Vocabulary{
		Core:        []string{"chú fáng 厨房", "guō 锅", "pán 盘", "zhuō zi 桌子"},
		Items:       []string{"dāo 刀", "chā 叉", "kuài zi 筷子", "wǎn 碗", "shuǐ hú 水壶", "bēi zi 杯子", "guō shào 锅勺", "cài 菜"},
		Environment: []string{"chú guì 橱柜", "zào tái 灶台", "shuǐ lóng tóu 水龙头", "qiáng 墙", "chuāng 窗"},
	}},
	{key: "bedroom", vocab: Vocabulary{
		Core:        []string{"chuáng 床", "zhěn tou 枕头", "bèi zi 被子", "wò shì 卧室"},
		Items:       []string{"xiāng zi 箱子", "yī guì 衣柜", "dēng 灯", "shū zhuō 书桌", "yǐ zi 椅子", "jìng zi 镜子", "huà huà 画画", "wán jù 玩具"},
		Environment: []string{"mén 门", "chuāng 窗", "qiáng 墙", "dì 地", "tiān huā bǎn 天花板"},
	}},
	{key: "playground", vocab: Vocabulary{
		Core:        []string{"yóu lè chǎng 游乐场", "qiū qiān 秋千", "huá tī 滑梯", "dān gàng 单杠"},
		Items:       []string{"pán qiū qiān 攀秋千", "qí mǎ 骑马", "huá lún 滑轮", "bèng bèng chù 蹦蹦床", "qí qián 骑钱", "wán jù 玩具", "qiú 球", "dǎn dàn 蛋蛋"},
		Environment: []string{"dì 地", "shù 树", "lù 路", "qiáng 墙", "zhào péng 罩棚"},
	}},
	{key: "library", vocab: Vocabulary{
		Core:        []string{"tú shū guǎn 图书馆", "shū jià 书架", "shū 书", "guǎn lǐ yuán 管理员"},
		Items:       []string{"kān shū 看书", "bǐ 笔", "běn zi 本子", "diàn nǎo 电脑", "zhuō zi 桌子", "yǐ zi 椅子", "shū bāo 书包", "bān zhī 板纸"},
		Environment: []string{"mén 门", "chuāng 窗", "qiáng 墙", "dēng 灯", "lù 路"},
	}},
	{key: "transportation", vocab: Vocabulary{
		Core:        []string{"chē 车", "gōng jiāo chē 公交车", "diàn tiē 地铁", "huǒ chē 火车"},
		Items:       []string{"chē zhàn 车站", "zhào xiàng 照相", "dēng 灯", "zhǐ tiáo 指示牌", "qiáo 桥", "lù 路", "jiāo tōng 交通", "xíng 行"},
		Environment: []string{"tiān 天空", "qiáng 墙", "dì 地", "shù 树", "hé 河"},
	}},
}

// defaultVocabulary は未登録テーマ用の語彙です（スーパーマーケットと同内容）。
var defaultVocabulary = themes[0].vocab

// Lookup はテーマに対応する語彙を返します。キーは大文字小文字を区別しません。
// 未登録の場合は既定語彙と VariantDefault を返します。
func Lookup(theme string) (Vocabulary, Variant) {
	key := strings.ToLower(strings.TrimSpace(theme))
	for _, t := range themes {
		if t.key == key {
			return t.vocab.clone(), Variant(t.key)
		}
	}
	return defaultVocabulary.clone(), VariantDefault
}

// Themes は登録済みテーマのキー一覧を登録順で返します。
func Themes() []string {
	keys := make([]string, len(themes))
	for i, t := range themes {
		keys[i] = t.key
	}
	return keys
}

// IsValidTheme はテーマが登録済みかを返します。
func IsValidTheme(theme string) bool {
	_, variant := Lookup(theme)
	return variant != VariantDefault
}

func (v Vocabulary) clone() Vocabulary {
	return Vocabulary{
		Core:        append([]string(nil), v.Core...),
		Items:       append([]string(nil), v.Items...),
		Environment: append([]string(nil), v.Environment...),
	}
}
