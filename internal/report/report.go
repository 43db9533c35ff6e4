package report

import (
	"bytes"
	"fmt"

	"quizbot/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

// Generate renders a user's quiz results as an A4 PDF document.
func Generate(displayName string, userID int64, results []domain.Result) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 10, "Quiz Results", "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 8, fmt.Sprintf("Name: %s\nUser ID: %d\nQuizzes taken: %d", displayName, userID, len(results)), "", "L", false)
	pdf.Ln(4)

	for _, result := range results {
		pdf.SetFont("Helvetica", "B", 13)
		title := result.QuizTitle
		if title == "" {
			title = result.QuizID
		}
		pdf.MultiCell(0, 8, title, "", "L", false)

		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, fmt.Sprintf("Score: %.2f / %d (%.1f%%)  -  completed %s",
			result.Raw, result.Max, result.Percentage,
			result.CompletedAt.Format("2006-01-02 15:04")), "", "L", false)

		for i, answer := range result.Answers {
			var outcome string
			switch {
			case answer.Correct:
				outcome = "Correct"
			case answer.SelectedOption == domain.NoAnswer:
				outcome = "No answer"
			default:
				outcome = "Incorrect"
			}
			pdf.MultiCell(0, 5, fmt.Sprintf("  Q%d: %s", i+1, outcome), "", "L", false)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
