package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/alienxp03/parley/internal/core"
)

// PDFExporter exports debates to PDF format.
type PDFExporter struct{}

// Export writes the debate as PDF.
func (e *PDFExporter) Export(debate *core.Debate, turns []*core.Turn, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, e.sanitizeText(debate.Config.Topic), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	id := debate.ID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	e.addMetadataRow(pdf, "ID:", id)
	e.addMetadataRow(pdf, "Status:", string(debate.Status))
	e.addMetadataRow(pdf, "Language:", debate.Config.Language)
	e.addMetadataRow(pdf, "Rounds:", fmt.Sprintf("%d", debate.Config.NumRounds))
	e.addMetadataRow(pdf, "Created:", debate.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if debate.EndedAt != nil {
		e.addMetadataRow(pdf, "Ended:", debate.EndedAt.Format("January 2, 2006 at 3:04 PM"))
		e.addMetadataRow(pdf, "Duration:", formatDuration(debate.CreatedAt, *debate.EndedAt))
	}
	pdf.Ln(5)

	// Participants section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Participants")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for i, p := range debate.Config.Participants {
		r, g, b := participantColor(i, p.Role)
		e.addParticipantBox(pdf, p, r, g, b)
		pdf.Ln(3)
	}
	pdf.Ln(5)

	// Debate content
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate")
	pdf.Ln(8)

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
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No turns recorded.")
		pdf.Ln(6)
	} else {
		for _, turn := range regular {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}

			if turn.TurnType == core.TurnModeratorComment {
				pdf.SetFillColor(255, 240, 200) // Light amber
			} else {
				pdf.SetFillColor(200, 230, 255) // Light blue
			}

			pdf.SetFont("Arial", "B", 10)
			header := fmt.Sprintf("Turn %d - %s (%s)", turn.SeqIndex+1, turn.SpeakerName, turn.CreatedAt.Format("3:04 PM"))
			pdf.CellFormat(0, 7, e.sanitizeText(header), "", 1, "", true, 0, "")

			pdf.SetFont("Arial", "", 9)
			pdf.SetFillColor(255, 255, 255)
			pdf.MultiCell(0, 5, e.sanitizeText(turn.Text), "", "", false)
			if turn.Error != "" {
				pdf.SetFont("Arial", "I", 8)
				pdf.MultiCell(0, 4, e.sanitizeText("Generation error: "+turn.Error), "", "", false)
			}
			pdf.Ln(5)
		}
	}

	// Verdict
	if verdict != nil {
		if pdf.GetY() > 230 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Verdict")
		pdf.Ln(8)

		pdf.SetFillColor(220, 210, 255) // Light purple
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, e.sanitizeText("Judged by "+verdict.ModelUsed), "", 1, "", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		pdf.SetFillColor(255, 255, 255)
		pdf.MultiCell(0, 5, e.sanitizeText(verdict.Text), "", "", false)
		pdf.Ln(3)
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from parley", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// Helper to add a metadata row
func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

// Helper to add a participant box
func (e *PDFExporter) addParticipantBox(pdf *gofpdf.Fpdf, p core.Participant, r, g, b int) {
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, e.sanitizeText(p.DisplayName), "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.Cell(25, 5, "Role:")
	pdf.Cell(0, 5, string(p.Role))
	pdf.Ln(5)
	pdf.Cell(25, 5, "Model:")
	pdf.Cell(0, 5, p.ModelID)
	pdf.Ln(5)
	if p.Persona != "" {
		pdf.Cell(25, 5, "Persona:")
		pdf.Cell(0, 5, e.sanitizeText(p.Persona))
		pdf.Ln(5)
	}
}

func participantColor(i int, role core.ParticipantRole) (int, int, int) {
	if role == core.RoleModerator {
		return 255, 240, 200 // Light amber
	}
	if i%2 == 0 {
		return 200, 230, 255 // Light blue
	}
	return 200, 255, 200 // Light green
}

// Sanitize text for PDF (remove problematic characters)
func (e *PDFExporter) sanitizeText(text string) string {
	// gofpdf uses Windows-1252 encoding by default
	// Replace common Unicode characters that might cause issues
	replacer := strings.NewReplacer(
		"‘", "'", // Left single quote
		"’", "'", // Right single quote
		"“", "\"", // Left double quote
		"”", "\"", // Right double quote
		"–", "-", // En dash
		"—", "--", // Em dash
		"…", "...", // Ellipsis
		"•", "*", // Bullet
		" ", " ", // Non-breaking space
	)
	return replacer.Replace(text)
}
