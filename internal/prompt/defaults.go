package prompt

// 内置提示词；prompts_path 指向的 YAML 可按 key 覆盖。
const (
	KeyTechnical   = "technical"
	KeyTechnicalEN = "technical_en"
	KeyNews        = "news"
	KeyNewsEN      = "news_en"
	KeyDecision    = "decision"
	KeyDiscussion  = "discussion"
	KeyReflection  = "reflection"
)

var defaultTemplates = map[string]Template{
	KeyTechnical: {
		System: `你是一位专业的比特币技术分析师。基于提供的价格数据和技术指标，
分析当前市场趋势并给出交易建议（BUY/SELL/HOLD）。

请提供：
1. 信号类型（BUY/SELL/HOLD）
2. 置信度（0-1之间）
3. 详细推理过程

以JSON格式返回：{"signal": "BUY/SELL/HOLD", "confidence": 0.85, "reasoning": "..."}`,
		User: "交易对：{{.Symbol}} 周期：{{.Interval}}\n\n价格数据：\n{{.PriceTable}}\n\n技术指标：\n{{.Indicators}}",
	},
	KeyTechnicalEN: {
		System: `You are a Bitcoin technical analyst. Analyze price trends and patterns.
Return JSON: {"signal": "BUY/SELL/HOLD", "confidence": 0.85, "reasoning": "..."}`,
		User: "Symbol: {{.Symbol}} Interval: {{.Interval}}\n\nPrice data:\n{{.PriceTable}}",
	},
	KeyNews: {
		System: `你是新闻情绪分析专家。分析比特币相关新闻的整体情绪和影响。
返回JSON格式：{"signal": "BUY/SELL/HOLD", "confidence": 0.75, "reasoning": "...", "sentiment": 0.6}`,
		User: "新闻列表：\n{{.NewsList}}",
	},
	KeyNewsEN: {
		System: `Analyze Bitcoin news sentiment and policy impact.
Return JSON: {"signal": "BUY/SELL/HOLD", "confidence": 0.75, "reasoning": "..."}`,
		User: "News:\n{{.NewsList}}",
	},
	KeyDecision: {
		System: `你是最终决策者。综合技术分析和新闻分析结果，做出最终交易决策。

考虑因素：
1. 各Agent的信号和置信度
2. 技术面与新闻面的一致性
3. 各Agent的历史准确率权重

返回JSON：{"signal": "BUY/SELL/HOLD", "confidence": 0.85, "reasoning": "...", "consensus_level": 0.9}`,
		User: "技术分析结果：\n{{.Technical}}\n\n新闻分析结果：\n{{.News}}",
	},
	KeyDiscussion: {
		System: `你是讨论主持人。各Agent已提出初步观点，现在进行第{{.Round}}轮讨论（共{{.Rounds}}轮）。

请：
1. 指出观点分歧点
2. 要求Agent解释其推理
3. 寻找共识

返回JSON：{"consensus": "BUY/SELL/HOLD", "confidence": 0.85, "key_points": [...], "disagreements": [...]}`,
		User: "当前观点：\n{{.Opinions}}\n\n历史讨论：\n{{.History}}",
	},
	KeyReflection: {
		System: `你是反思专家。分析当前决策和历史表现，提出改进建议。

返回JSON：{"adjusted_confidence": 0.75, "weight_adjustments": {"agent_name": 0.6}, "insights": "..."}`,
		User: "当前决策：\n{{.Signal}}\n\n历史表现：\n{{.Performance}}",
	},
}
