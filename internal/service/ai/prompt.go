package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
)

// directiveGuide 说明模型如何在回答中嵌入结构化指令，解码规则见 directive 包。
const directiveGuide = `需要展示数据时，在正文中嵌入指令块，指令块外的文字照常书写：
- 柱状图：<DIRECTIVE kind="BAR_CHART">{"xAxis":["周一","周二"],"yAxis":[{"label":"花费","value":[320,280]}]}</DIRECTIVE>
- 折线图：<DIRECTIVE kind="LINE_CHART">{"xAxis":["1月","2月"],"yAxis":[{"label":"气温","value":[5,8]}]}</DIRECTIVE>
- 地图标注：<DIRECTIVE kind="MAP_MARKERS">[{"name":"西湖","lat":30.25,"long":120.15}]</DIRECTIVE>
指令块内必须是合法 JSON；lat 为纬度，long 为经度，均为数字。不要在指令块外重复 JSON。`

// BuildSystemPrompt 根据助手配置生成系统提示词。
func BuildSystemPrompt(p profile.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是%s，%s。", p.Name, p.Title)
	if p.Description != "" {
		b.WriteString(p.Description)
	}
	if len(p.Expertise) > 0 {
		fmt.Fprintf(&b, "\n擅长：%s。", strings.Join(p.Expertise, "、"))
	}
	if p.PromptHint != "" {
		b.WriteString("\n回答要求：")
		b.WriteString(p.PromptHint)
	}
	b.WriteString("\n\n")
	b.WriteString(directiveGuide)
	return b.String()
}
