package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alienxp03/parley/internal/core"
)

func sampleDebate() (*core.Debate, []*core.Turn) {
	created := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ended := created.Add(5 * time.Minute)

	debate := &core.Debate{
		ID:     "abcd1234-5678",
		Title:  "Debate: Cats vs dogs",
		Status: core.StatusCompleted,
		Config: core.DebateConfig{
			Topic:    "Cats vs dogs",
			Language: "English",
			Participants: []core.Participant{
				{Role: core.RoleModerator, ModelID: "mod/model", DisplayName: "Host"},
				{Role: core.RoleDebater, ModelID: "a/model", DisplayName: "Alice", Persona: "data scientist"},
				{Role: core.RoleDebater, ModelID: "b/model", DisplayName: "Bob"},
			},
			NumRounds: 1,
			Intensity: 5,
		},
		CreatedAt: created,
		EndedAt:   &ended,
	}

	turns := []*core.Turn{
		{ID: "t0", DebateID: debate.ID, SeqIndex: 0, TurnType: core.TurnModeratorComment, SpeakerName: "Host", ModelUsed: "mod/model", Text: "Welcome everyone.", CreatedAt: created},
		{ID: "t1", DebateID: debate.ID, SeqIndex: 1, TurnType: core.TurnArgument, SpeakerName: "Alice", ModelUsed: "a/model", Text: "Cats are independent.", CreatedAt: created},
		{ID: "t2", DebateID: debate.ID, SeqIndex: 2, TurnType: core.TurnArgument, SpeakerName: "Bob", ModelUsed: "b/model", Text: "", Error: "model timeout", CreatedAt: created},
		{ID: "t3", DebateID: debate.ID, SeqIndex: 3, TurnType: core.TurnVerdict, SpeakerName: "Moderator (Verdict)", ModelUsed: "mod/model", Text: "## Winner\n\nAlice", CreatedAt: created},
	}
	return debate, turns
}

func TestGetExporter(t *testing.T) {
	for _, format := range []Format{FormatMarkdown, FormatPDF, FormatJSON} {
		exp, err := GetExporter(format)
		if err != nil {
			t.Errorf("GetExporter(%s) failed: %v", format, err)
		}
		if exp == nil {
			t.Errorf("GetExporter(%s) returned nil", format)
		}
	}

	if _, err := GetExporter("xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestGenerateFilename(t *testing.T) {
	debate, _ := sampleDebate()
	got := GenerateFilename(debate, "md")
	want := "debate_20260310_Cats_vs_dogs.md"
	if got != want {
		t.Errorf("filename: got %s, want %s", got, want)
	}
}

func TestGenerateFilenameSanitizesTopic(t *testing.T) {
	debate, _ := sampleDebate()
	debate.Config.Topic = `AI: friend/foe? "maybe"`
	got := GenerateFilename(debate, "json")
	if strings.ContainsAny(got, `/\:*?"<>| `) {
		t.Errorf("unsafe characters left in filename: %s", got)
	}
}

func TestMarkdownExport(t *testing.T) {
	debate, turns := sampleDebate()
	var buf bytes.Buffer

	if err := (&MarkdownExporter{}).Export(debate, turns, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Cats vs dogs",
		"## Participants",
		"- **Persona:** data scientist",
		"#### Turn 1 - Host",
		"Cats are independent.",
		"> Generation error: model timeout",
		"## Verdict",
		"*Judged by mod/model*",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q", want)
		}
	}

	// The verdict is not rendered as a regular turn.
	if strings.Contains(out, "#### Turn 4") {
		t.Error("verdict rendered as a regular turn")
	}
}

func TestMarkdownExportNoTurns(t *testing.T) {
	debate, _ := sampleDebate()
	var buf bytes.Buffer

	if err := (&MarkdownExporter{}).Export(debate, nil, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(buf.String(), "*No turns recorded.*") {
		t.Error("empty debate placeholder missing")
	}
}

func TestJSONExport(t *testing.T) {
	debate, turns := sampleDebate()
	var buf bytes.Buffer

	if err := (&JSONExporter{}).Export(debate, turns, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if data.Debate.ID != debate.ID {
		t.Errorf("debate id: got %s, want %s", data.Debate.ID, debate.ID)
	}
	if len(data.Turns) != len(turns) {
		t.Errorf("turn count: got %d, want %d", len(data.Turns), len(turns))
	}
	if data.Turns[2].Error != "model timeout" {
		t.Errorf("turn error lost in export: %q", data.Turns[2].Error)
	}
}

func TestPDFExport(t *testing.T) {
	debate, turns := sampleDebate()
	var buf bytes.Buffer

	if err := (&PDFExporter{}).Export(debate, turns, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output does not look like a PDF")
	}
}
