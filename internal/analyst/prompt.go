package analyst

import "strings"

// Language selects the instruction template and fallback wording.
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

// ParseLanguage maps a config value to a Language, defaulting to English.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zh", "zh-cn", "cn", "chinese":
		return Chinese
	default:
		return English
	}
}

type templates struct {
	system      string
	instruction string
	context     string
	question    string
}

var promptTemplates = map[Language]templates{
	English: {
		system: "You are a data analysis assistant.",
		instruction: `You are a data analysis assistant. Handle the user's request in two steps.
1. Thought: decide whether the request needs a text answer, a table or a chart, and check that the data types fit.
2. Action: reply with exactly one JSON object in one of these shapes.
   - Text answer:
     {"answer": "a clear answer of at most 50 characters"}
   - Table:
     {"table": {"columns": ["col1", "col2", ...], "data": [["row1 value1", "value2", ...], ["row2 value1", "value2", ...]]}}
   - Bar chart:
     {"bar": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - Line chart:
     {"line": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - Pie chart:
     {"pie": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - Scatter plot:
     {"scatter": {"columns": [1, 2, 3, ...], "data": [35, 42, 29, ...]}}
3. Formatting rules:
   - string values use ASCII double quotes
   - numbers are never quoted
   - every array is closed
   - "columns" and "data" of a chart have the same length; every table row has one value per column
   Wrong: {'columns':['Product', 'Sales'], data:[[A001, 200]]}
   Right: {"columns":["product", "sales"], "data":[["A001", 200]]}
Do not put newlines, tabs or other control characters inside the JSON. Reply with the JSON object only.`,
		context:  "Dataset overview:",
		question: "Current user request:",
	},
	Chinese: {
		system: "你是一位数据分析助手。",
		instruction: `你是一位数据分析助手，请按照下面的步骤处理用户请求：
1. 思考阶段：先判断请求需要文字回答、表格还是图表，并确认数据类型是否匹配。
2. 行动阶段：只返回一个 JSON 对象，格式必须是以下之一。
   - 纯文字回答：
     {"answer": "不超过50个字符的明确答案"}
   - 表格：
     {"table": {"columns": ["列名1", "列名2", ...], "data": [["第一行值1", "值2", ...], ["第二行值1", "值2", ...]]}}
   - 柱状图：
     {"bar": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - 折线图：
     {"line": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - 饼图：
     {"pie": {"columns": ["A", "B", "C", ...], "data": [35, 42, 29, ...]}}
   - 散点图：
     {"scatter": {"columns": [1, 2, 3, ...], "data": [35, 42, 29, ...]}}
3. 格式要求：
   - 字符串必须使用英文双引号
   - 数值不得加引号
   - 数组必须闭合
   - 图表的 columns 与 data 长度一致；表格每行的值个数与列数一致
   错误示例：{'columns':['Product', 'Sales'], data:[[A001, 200]]}
   正确示例：{"columns":["product", "sales"], "data":[["A001", 200]]}
JSON 中不要出现换行符、制表符或其他控制字符，只返回 JSON 对象。`,
		context:  "数据集概况：",
		question: "当前用户请求如下：",
	},
}

var fallbackAnswers = map[Language]string{
	Chinese: "暂时无法提供分析结果，请稍后重试！",
}

// buildPrompt joins the instruction, the dataset context and the question.
func buildPrompt(lang Language, tableContext, question string) string {
	tpl := promptTemplates[lang]
	var b strings.Builder
	b.WriteString(tpl.instruction)
	if tableContext != "" {
		b.WriteString("\n\n")
		b.WriteString(tpl.context)
		b.WriteString("\n")
		b.WriteString(tableContext)
	}
	b.WriteString("\n\n")
	b.WriteString(tpl.question)
	b.WriteString("\n")
	b.WriteString(question)
	return b.String()
}
