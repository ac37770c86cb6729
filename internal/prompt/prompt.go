// Package prompt builds the system and user prompt text for debate turns.
// Every function here is pure: identical inputs yield identical output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/alienxp03/parley/internal/core"
)

// lengthInstructions maps each length preset to a fixed target-word-count
// instruction. Presets steer the model, they never truncate output.
var lengthInstructions = map[core.LengthPreset]string{
	core.LengthVeryShort: "Keep your response very short and concise, around 50 words.",
	core.LengthShort:     "Keep your response short, around 100 words.",
	core.LengthMedium:    "Keep your response medium length, around 250 words.",
	core.LengthLong:      "You can provide a detailed response, around 500 words or more.",
}

// LengthInstruction returns the instruction for a preset, defaulting to medium.
func LengthInstruction(preset core.LengthPreset) string {
	if s, ok := lengthInstructions[preset]; ok {
		return s
	}
	return lengthInstructions[core.LengthMedium]
}

// intensityInstruction describes the debating style for an intensity level.
func intensityInstruction(intensity int) string {
	switch {
	case intensity <= 3:
		return "Be extremely polite, calm, and academic."
	case intensity <= 7:
		return "Be firm, engaging, and persuasive."
	default:
		return "Be very passionate, dramatic, and intense, but respectful."
	}
}

// SystemPrompt composes the system prompt for a regular turn from the
// speaker's role and persona, the debate intensity, language, and length
// preset.
func SystemPrompt(speaker core.Participant, intensity int, language string, preset core.LengthPreset) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are a participant in a debate. Your role is %s.", speaker.Role))
	if speaker.Persona != "" {
		sb.WriteString(fmt.Sprintf(" Your persona is: %s.", speaker.Persona))
	}
	sb.WriteString("\nStyle instruction: ")
	sb.WriteString(intensityInstruction(intensity))
	if language != "" {
		sb.WriteString(fmt.Sprintf("\nRespond in %s.", language))
	}
	sb.WriteString("\n\n")
	sb.WriteString(LengthInstruction(preset))

	return sb.String()
}

// Transcript renders prior turns in speaking order. The format is load-bearing:
// saved turns re-rendered here must reproduce it byte-for-byte.
func Transcript(turns []*core.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(fmt.Sprintf("%s: %s\n\n", t.SpeakerName, t.Text))
	}
	return sb.String()
}

// UserContent composes the user-turn message for a regular turn: topic,
// optional description, roster, transcript, and an instruction naming the
// current speaker.
func UserContent(config *core.DebateConfig, turns []*core.Turn, speaker core.Participant) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("The debate topic is: %s. \n", config.Topic))
	if config.Description != "" {
		sb.WriteString(fmt.Sprintf("Context: %s\n", config.Description))
	}

	sb.WriteString("\nParticipants:\n")
	for _, p := range config.Participants {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.DisplayName, p.Role))
	}

	sb.WriteString(fmt.Sprintf("\nDebate History:\n%s\n", Transcript(turns)))
	sb.WriteString(fmt.Sprintf("Now it is your turn, %s. Please provide your argument.", speaker.DisplayName))

	return sb.String()
}

// VerdictSystemPrompt is the fixed judge instruction, parameterized only by
// output language.
func VerdictSystemPrompt(language string) string {
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(`You are an expert Debate Judge.
Your task is to analyze the debate history provided by the user.

Strictly follow this structure in your response (use Markdown):
1. **Winner**: Declare the winner (or a draw) based on argument strength, logic, and persuasion.
2. **Analysis**: Briefly analyze the performance of each participant.
3. **Key Arguments**: Highlight the strongest points made.
4. **Logical Fallacies**: Point out any logical errors or weak arguments.

Output Language: %s
Style: Objective, Professional, and Analytical.
FORMATTING: You MUST use bolding, lists, and headers.`, language)
}

// VerdictUserContent composes the user-turn message for the verdict step with
// the full transcript as context.
func VerdictUserContent(config *core.DebateConfig, turns []*core.Turn) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("The debate topic was: %s. \n", config.Topic))
	if config.Description != "" {
		sb.WriteString(fmt.Sprintf("Context: %s\n", config.Description))
	}

	sb.WriteString(fmt.Sprintf("\nFull Debate Transcript:\n%s\n", Transcript(turns)))
	sb.WriteString("Please provide your final verdict now.")

	return sb.String()
}
