// Package hierarchical 提供 Supervisor-Worker 模式的层次化团队编排.
//
// 一个 Team 由名为 "supervisor" 的监督者节点和若干 Worker 组成. 监督者每一步
// 询问 Oracle 下一个行动者；Worker 追加一条以自身名字署名的消息后回到监督者.
// TeamInvoker 把整个子团队包装成父团队中的一个普通 Worker，子团队的运行只
// 看到父状态的最后一条消息.
//
// BuildSuperTeam 组装 research_team 与 writing_team 两个子团队，
// 得到三层结构.
package hierarchical
