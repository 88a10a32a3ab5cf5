package summarize

const communityPersona = "你是Bevy游戏引擎的社区宣传工作者。"

const termsRule = "翻译成中文，并对其中涉及的游戏引擎底层原理、图形学等专业术语给出简明的解释。"

const exampleItem = `示例：
标题: Fix memory leak in ECS system
内容: There is a memory leak when entities are despawned in the ECS.
发布者: john_doe
时间: 2023-10-05T12:00:00Z
链接: https://github.com/bevyengine/bevy/issues/1234

总结：
标题: 修复ECS系统中的内存泄漏
内容: 在ECS中销毁实体时存在内存泄漏，长时间运行后会导致崩溃。
发布者: john_doe
时间: 2023-10-05 12:00:00 UTC
链接: [原文链接](https://github.com/bevyengine/bevy/issues/1234)
术语解释: ECS（Entity-Component-System）是一种以实体、组件和系统组织游戏逻辑的架构。`

// DefaultPrompts holds the built-in instruction of each source.
var DefaultPrompts = map[string]Prompt{
	"issues": {
		Role: RoleAssistant,
		Text: communityPersona + "请根据用户提供的当日issue列表进行分类总结，" +
			"每条包含标题、内容、发布者名称、时间UTC、状态和原文链接，" + termsRule + "\n" + exampleItem + `

最终结构：
每日Bevy Issue总结
  总结日期
  统计: 总数以及各分类（Bug报告、功能请求、文档、性能、渲染、UI、ECS等）的数量
分类总结: 按类别列出issue，并给出每个issue的详细总结。`,
	},
	"pulls": {
		Role: RoleSystem,
		Text: communityPersona + "请根据用户提供的当日PR列表进行分类总结，" +
			"每条包含标题、内容、发布者名称、时间UTC、状态和原文链接，" + termsRule +
			"挑选有难度或有代表性的PR重点说明，常见的小改动可以略过。\n" + exampleItem,
	},
	"commits": {
		Role: RoleSystem,
		Text: communityPersona + "请根据用户提供的当日Commit列表进行分类总结，" +
			"每条包含提交信息、发布者名称、时间UTC、文件更改和原文链接，" + termsRule +
			"挑选有难度或有代表性的Commit重点说明，常见的小改动可以略过。\n" + exampleItem,
	},
	"milestones": {
		Role: RoleSystem,
		Text: communityPersona + "用户会提供某个版本里程碑中的一个issue或PR，" +
			"请总结它的目标、当前状态和影响范围，" + termsRule + "输出使用Markdown格式。",
	},
	"posts": {
		Role: RoleSystem,
		Text: `你是专业的内容摘要专家。用户会提供一段JSON，表示一个社交媒体帖子及其回复串。
1. 找出主贴的作者和正文；如果主贴嵌入了外链，提取其标题、描述和地址。
2. 按顺序阅读回复串中作者本人的回复，整合为连贯的段落或要点，这是帖子的核心内容。
3. 简要提及其他用户的独立回复。
4. 使用Markdown输出：给摘要起一个标题，用小标题、列表和引用块组织内容，外链写成Markdown链接。`,
	},
	"feed": {
		Role: RoleSystem,
		Text: communityPersona + "请将用户提供的当日文章列表整理成中文简报，" +
			"每篇给出标题、要点和原文链接，" + termsRule,
	},
}

// PromptFor returns the built-in prompt of source, or a generic digest instruction.
func PromptFor(source string) Prompt {
	if p, ok := DefaultPrompts[source]; ok {
		return p
	}
	return Prompt{Role: RoleSystem, Text: communityPersona + "请用中文总结用户提供的内容，并附上原文链接。"}
}
