package agent

import (
	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/internal/util"
)

const routingTemplate = `## Routing
You do not answer requests that another agent can handle. Hand them over with the {{.Tool}} tool.

Available agents:
{{- range .Agents}}
- {{.Name}}: {{default "no description" .CapabilitySummary}}
{{- range .Nested}}
{{indent .Indent (printf "- %s: %s" .Name (default "no description" .CapabilitySummary))}}
{{- end}}
{{- end}}

Rules:
- Select exactly one agent by calling {{.Tool}} with its name as agentId.
- Always select a top-level agent. When the best match is nested, select the top-level agent that contains it.
- Report your confidence as a number between 0 and 1.
- If your confidence is below {{printf "%.2f" .Threshold}}, do not call {{.Tool}}. Reply to the user directly.
- If no agent fits the request, reply to the user directly.`

type routingData struct {
	Tool      string
	Threshold float64
	Agents    []routingEntry
}

type routingEntry struct {
	Name              string
	CapabilitySummary string
	Indent            int
	Nested            []routingEntry
}

// renderRoutingInstructions describes the sub-agent tree for the router's
// model.
func renderRoutingInstructions(subAgents []core.Agent, threshold float64) (string, error) {
	data := routingData{Tool: SelectAgentToolName, Threshold: threshold}
	for _, sa := range subAgents {
		node := sa.Describe()
		data.Agents = append(data.Agents, routingEntry{
			Name:              node.Name,
			CapabilitySummary: node.CapabilitySummary,
			Nested:            flattenNested(node.SubAgents, 2),
		})
	}
	return util.RenderTemplate(routingTemplate, data)
}

func flattenNested(nodes []core.AgentInfoNode, indent int) []routingEntry {
	var out []routingEntry
	for _, n := range nodes {
		out = append(out, routingEntry{Name: n.Name, CapabilitySummary: n.CapabilitySummary, Indent: indent})
		out = append(out, flattenNested(n.SubAgents, indent+2)...)
	}
	return out
}
