package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/enginegate/pkg/domain"
)

// GenerateMermaid renders the admission queue as a left-to-right Mermaid flowchart.
// Shapes follow the session state:
// - Starting/Connected: ((Circle))
// - Idle, preemptible: [/Parallelogram/]
// - Idle: [Rectangle]
// - Finished: (Rounded)
// Arrows point from each session to the one waiting on its ready signal.
func GenerateMermaid(sessions []domain.SessionInfo) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	if len(sessions) == 0 {
		sb.WriteString("    empty[\"(queue empty)\"]\n")
		return sb.String()
	}

	for i, s := range sessions {
		nodeID := fmt.Sprintf("q%d", i)

		opener, closer := "[", "]"
		switch {
		case s.State.Active():
			opener, closer = "((", "))"
		case s.State == domain.StateFinished:
			opener, closer = "(", ")"
		case s.Preemptive:
			opener, closer = "[/", "/]"
		}

		label := sanitizeLabel(s.ID)
		if s.DemoMode {
			label += " <br/> demo"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", nodeID, opener, label, s.State, closer))

		if i > 0 {
			sb.WriteString(fmt.Sprintf("    q%d -- ready --> %s\n", i-1, nodeID))
		}
	}

	sb.WriteString("\n    %% State Styles\n")
	// Black text keeps contrast on both light and dark themes.
	sb.WriteString("    classDef active fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef waiting fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	for i, s := range sessions {
		switch {
		case s.State.Active():
			sb.WriteString(fmt.Sprintf("    class q%d active;\n", i))
		case s.State == domain.StateIdle:
			sb.WriteString(fmt.Sprintf("    class q%d waiting;\n", i))
		}
	}

	return sb.String()
}

func sanitizeLabel(id string) string {
	return strings.ReplaceAll(id, "\"", "'")
}
