package profile

// Profile describes an assistant agent exposed to the frontend. AppName is the upstream agent
// application the profile talks to.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Greeting    string   `json:"greeting"`
	Welcome     string   `json:"welcome"`
	Placeholder string   `json:"placeholder"`
	PromptHint  string   `json:"promptHint"`
	AppName     string   `json:"appName"`
	Description string   `json:"description,omitempty"`
	Expertise   []string `json:"expertise,omitempty"`
}

// DefaultID is used when a session is started without a profile.
const DefaultID = "travel_agent"

// Seed provides the built-in agent profiles.
func Seed() []Profile {
	return []Profile{
		{
			ID:          DefaultID,
			Name:        "旅行助手",
			Title:       "行程规划师",
			Greeting:    "嗨，近来可好 👋",
			Welcome:     "你想去哪里？我可以帮你规划你的旅行。",
			Placeholder: "请输入想咨询的内容…",
			PromptHint:  "按天给出行程，涉及预算或气温对比时输出图表，涉及地点时输出地图标注。",
			AppName:     "travel_agent",
			Description: "根据目的地、天数与预算规划行程，并用图表和地图展示关键信息。",
			Expertise:   []string{"行程规划", "预算估算", "景点推荐", "交通建议"},
		},
		{
			ID:          "budget_planner",
			Name:        "预算管家",
			Title:       "旅行花费分析",
			Greeting:    "你好，我来帮你算算账 💰",
			Welcome:     "告诉我目的地和出行人数，我会拆分交通、住宿与餐饮开销。",
			Placeholder: "例如：三个人去成都玩五天大概要花多少钱？",
			PromptHint:  "优先使用柱状图对比各项开销，用折线图展示每日花费趋势。",
			AppName:     "travel_agent",
			Description: "专注旅行预算拆分与对比。",
			Expertise:   []string{"预算估算", "费用对比"},
		},
	}
}
