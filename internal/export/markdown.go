package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/alienxp03/parley/internal/core"
)

// MarkdownExporter exports debates to Markdown format.
type MarkdownExporter struct{}

// Export writes the debate as Markdown.
func (e *MarkdownExporter) Export(debate *core.Debate, turns []*core.Turn, w io.Writer) error {
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# %s\n\n", debate.Config.Topic))

	// Metadata
	sb.WriteString("## Debate Information\n\n")
	sb.WriteString(fmt.Sprintf("- **ID:** `%s`\n", debate.ID))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", debate.Status))
	sb.WriteString(fmt.Sprintf("- **Language:** %s\n", debate.Config.Language))
	sb.WriteString(fmt.Sprintf("- **Rounds:** %d\n", debate.Config.NumRounds))
	sb.WriteString(fmt.Sprintf("- **Created:** %s\n", debate.CreatedAt.Format("January 2, 2006 at 3:04 PM")))
	if debate.EndedAt != nil {
		sb.WriteString(fmt.Sprintf("- **Ended:** %s\n", debate.EndedAt.Format("January 2, 2006 at 3:04 PM")))
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(debate.CreatedAt, *debate.EndedAt)))
	}
	sb.WriteString("\n")

	if debate.Config.Description != "" {
		sb.WriteString("## Context\n\n")
		sb.WriteString(debate.Config.Description)
		sb.WriteString("\n\n")
	}

	// Participants
	sb.WriteString("## Participants\n\n")
	for _, p := range debate.Config.Participants {
		sb.WriteString(fmt.Sprintf("### %s\n", p.DisplayName))
		sb.WriteString(fmt.Sprintf("- **Role:** %s\n", p.Role))
		sb.WriteString(fmt.Sprintf("- **Model:** %s\n", p.ModelID))
		if p.Persona != "" {
			sb.WriteString(fmt.Sprintf("- **Persona:** %s\n", p.Persona))
		}
		sb.WriteString("\n")
	}

	// Debate Content
	sb.WriteString("## Debate\n\n")

	var verdict *core.Turn
	regular := make([]*core.Turn, 0, len(turns))
	for _, t := range turns {
		if t.TurnType == core.TurnVerdict {
			verdict = t
			continue
		}
		regular = append(regular, t)
	}

	if len(regular) == 0 {
		sb.WriteString("*No turns recorded.*\n\n")
	} else {
		cycle := debate.Config.CycleLength()
		for _, turn := range regular {
			if cycle > 0 && turn.SeqIndex%cycle == 0 {
				sb.WriteString(fmt.Sprintf("### Round %d\n\n", turn.SeqIndex/cycle+1))
			}

			sb.WriteString(fmt.Sprintf("#### Turn %d - %s\n\n", turn.SeqIndex+1, turn.SpeakerName))
			sb.WriteString(fmt.Sprintf("*%s*\n\n", turn.CreatedAt.Format("3:04 PM")))
			sb.WriteString(turn.Text)
			if turn.Error != "" {
				sb.WriteString(fmt.Sprintf("\n\n> Generation error: %s", turn.Error))
			}
			sb.WriteString("\n\n---\n\n")
		}
	}

	// Verdict
	if verdict != nil {
		sb.WriteString("## Verdict\n\n")
		sb.WriteString(fmt.Sprintf("*Judged by %s*\n\n", verdict.ModelUsed))
		sb.WriteString(verdict.Text)
		if verdict.Error != "" {
			sb.WriteString(fmt.Sprintf("\n\n> Generation error: %s", verdict.Error))
		}
		sb.WriteString("\n\n")
	}

	// Footer
	sb.WriteString("---\n\n")
	sb.WriteString("*Exported from parley*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}
