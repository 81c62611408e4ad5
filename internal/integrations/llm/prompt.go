package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"newsradar/internal/domain"
)

const (
	classifyTemperature = 0.1
	narrateTemperature  = 0.3
)

const classifySystemPrompt = `【角色】A股策略分析师。你的任务是穿透噪音，识别【预期差】与【博弈价值】。只输出JSON，不要输出其他文字。`

const scoringRubric = `【核心铁律 (按类型匹配)】
1. 【政策类】：遵循"政策即命令"。
   - 定性：区分实招(改变资金/规则)与虚招(口号)。
   - 博弈：必须结合市场环境判断。冰点出利好=雪中送炭；高位出利空=降温打击。
2. 【海外映射】：提及台积电/英伟达/特斯拉/OpenAI等国外巨头的重磅消息时，必须关联A股对应产业链及对应【二级细分】，视为高权重指引。
3. 【个股微观】：
   - 业绩时机：预告期内增长=明牌(低分)；非预告期突发=预期差(高分)。
   - 合同/订单：占上年营收比重 >30% 为高能(7-8分)；5%-30% 为中性(5-6分)；<5% 或未披露金额为微弱(0-4分)。
   - 技术突破：需明确"获权威认证"或"获量产订单"，否则视为软信息打折处理。
   - 资金动作：注销式回购 > 真金增持 > 承诺不减持 > 口头口号。

【评分标准 (0-10)】
- 9-10分【核弹/结构性颠覆】：极高意外性。如：印花税、限制量化、实控人被抓、非预告期业绩暴雷/暴增。
- 7-8分【高能/强驱动】：实质性利好。如：海外映射爆发、营收占比>30%大订单、行业垄断性技术突破。
- 6分【显著/超预期】：明确的利好，且略超市场预期。
- 4-5分【关注/明牌】：信息真实但影响微弱/已兑现。
- 0-3分【噪音/垃圾】：小合同、纯行情播报、无来源传闻、无关海外事件。`

const outputSchema = `【输出JSON列表】每条输入对应一个对象：
- "id": 原样返回
- "score": 整数(0-10)
- "sentiment": -1.0(空) ~ 1.0(多)
- "summary": 8字内核心标签
- "sector": 一级大类。政策类无特定板块填"全局"。
- "sub_sector": 二级细分。若无细分填"通用"。
- "type": Policy/Micro/Industry/Noise
- "impact_horizon": Immediate/Short/Medium
- "key_trigger": 政策/业绩/合同/减持/回购/映射/其他
- "related_stocks": ["公司名"]
- "logic": 一句犀利点评。合同类注明"营收占比约xx%"；噪音类注明"无增量信息"。`

type promptItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func buildClassifyPrompts(taxonomyPrompt, marketContext string, items []domain.NewsItem) (string, string, error) {
	batch := make([]promptItem, 0, len(items))
	for _, item := range items {
		batch = append(batch, promptItem{ID: item.ID, Content: item.Text})
	}
	encoded, err := json.Marshal(batch)
	if err != nil {
		return "", "", fmt.Errorf("marshaling prompt items: %w", err)
	}

	var user strings.Builder
	user.WriteString("【市场环境】")
	user.WriteString(marketContext)
	user.WriteString("\n\n【产业链图谱】\n")
	user.WriteString(taxonomyPrompt)
	user.WriteString("\n")
	user.WriteString(scoringRubric)
	user.WriteString("\n\n【输入新闻】\n")
	user.Write(encoded)
	user.WriteString("\n\n")
	user.WriteString(outputSchema)
	return classifySystemPrompt, user.String(), nil
}

// NarrativeInput is the rendered digest handed to the narrator.
type NarrativeInput struct {
	Now         time.Time
	SectorTable string
	Details     string
}

const narrateSystemPrompt = `你是A股量化基金经理。请基于【双层板块结构】分析资金流向。格式：Markdown，分点陈述，拒绝废话。`

func buildNarrativePrompt(in NarrativeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "现在是%s %s 盘前/午间。\n\n", in.Now.Weekday(), in.Now.Format("2006-01-02 15:04"))
	b.WriteString("【一级板块强弱榜 (Strength)】\n")
	b.WriteString(in.SectorTable)
	b.WriteString("\n\n【核心情报 (含二级细分)】\n")
	b.WriteString(in.Details)
	b.WriteString(`

【策略生成要求】
1. 结构化主线：指出最强的一级板块，并必须点出其内部最强的【二级细分】。
2. 预期差博弈：寻找 freshness 高(新消息)但尚未体现在 strength 上的细分领域。
3. 避雷指南：指出情绪(sentiment)为负的细分领域。
4. 标的映射：必须引用情报中的相关个股。`)
	return b.String()
}
