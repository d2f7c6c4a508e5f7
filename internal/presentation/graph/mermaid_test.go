package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/enginegate/internal/presentation/graph"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		sessions []domain.SessionInfo
		contains []string
		excludes []string
	}{
		{
			name:     "Empty Queue",
			contains: []string{"graph LR", "(queue empty)"},
			excludes: []string{"classDef"},
		},
		{
			name: "Shapes By State",
			sessions: []domain.SessionInfo{
				{ID: "game", State: domain.StateConnected},
				{ID: "preview", State: domain.StateIdle, Preemptive: true},
				{ID: "replay", State: domain.StateIdle, DemoMode: true},
			},
			contains: []string{
				`q0(("game <br/> connected"))`,
				`q1[/"preview <br/> idle"/]`,
				`q2["replay <br/> demo <br/> idle"]`,
				"q0 -- ready --> q1",
				"q1 -- ready --> q2",
				"class q0 active;",
				"class q1 waiting;",
			},
		},
		{
			name: "Finished Head And Quoted ID",
			sessions: []domain.SessionInfo{
				{ID: `say "hi"`, State: domain.StateFinished},
			},
			contains: []string{`q0("say 'hi' <br/> finished")`},
			excludes: []string{"class q0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.sessions)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.False(t, strings.Contains(got, unwanted), "unexpected %q in:\n%s", unwanted, got)
			}
		})
	}
}
