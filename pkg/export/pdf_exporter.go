package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// TranscriptDocument carries everything needed to render a printable transcript.
type TranscriptDocument struct {
	StudentName   string
	StudentID     string
	GeneratedAt   string
	CourseBlocks  []TranscriptCourseBlock
	SemesterGPAs  []TranscriptGPALine
	CumulativeGPA float64
}

// TranscriptCourseBlock is one course section on the transcript.
type TranscriptCourseBlock struct {
	CourseName      string
	CourseCode      string
	AcademicYear    string
	Semester        string
	FinalGrade      string
	FinalPercentage float64
	GradePoints     float64
	Entries         []TranscriptEntryLine
}

// TranscriptEntryLine is one graded assignment row.
type TranscriptEntryLine struct {
	Name       string
	Score      float64
	MaxScore   float64
	Weight     float64
	Percentage float64
}

// TranscriptGPALine is one semester GPA row.
type TranscriptGPALine struct {
	AcademicYear string
	Semester     string
	GPA          float64
}

// PDFExporter renders transcripts into a printable PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderTranscript produces the PDF bytes for a student transcript.
func (e *PDFExporter) RenderTranscript(doc TranscriptDocument) ([]byte, error) {
	if doc.StudentName == "" {
		return nil, fmt.Errorf("transcript requires a student name")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ACADEMIC TRANSCRIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Student: %s (%s)", doc.StudentName, doc.StudentID), "", 1, "L", false, 0, "")
	if doc.GeneratedAt != "" {
		pdf.CellFormat(0, 6, "Generated: "+doc.GeneratedAt, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for _, block := range doc.CourseBlocks {
		pdf.SetFont("Arial", "B", 11)
		title := fmt.Sprintf("%s (%s) - %s %s", block.CourseName, block.CourseCode, block.AcademicYear, strings.Title(block.Semester))
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 9)
		widths := []float64{80, 25, 25, 25, 35}
		headers := []string{"Assignment", "Score", "Max", "Weight", "Percent"}
		for i, header := range headers {
			pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, entry := range block.Entries {
			pdf.CellFormat(widths[0], 6, entry.Name, "1", 0, "", false, 0, "")
			pdf.CellFormat(widths[1], 6, fmt.Sprintf("%.1f", entry.Score), "1", 0, "R", false, 0, "")
			pdf.CellFormat(widths[2], 6, fmt.Sprintf("%.1f", entry.MaxScore), "1", 0, "R", false, 0, "")
			pdf.CellFormat(widths[3], 6, fmt.Sprintf("%.1f", entry.Weight), "1", 0, "R", false, 0, "")
			pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.2f%%", entry.Percentage), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}

		pdf.SetFont("Arial", "B", 9)
		summary := fmt.Sprintf("Final: %s  (%.2f%%, %.1f points)", block.FinalGrade, block.FinalPercentage, block.GradePoints)
		pdf.CellFormat(0, 7, summary, "", 1, "R", false, 0, "")
		pdf.Ln(3)
	}

	if len(doc.SemesterGPAs) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "GPA SUMMARY", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, line := range doc.SemesterGPAs {
			pdf.CellFormat(0, 6, fmt.Sprintf("%s %s: %.2f", line.AcademicYear, line.Semester, line.GPA), "", 1, "L", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, fmt.Sprintf("Cumulative GPA: %.2f", doc.CumulativeGPA), "", 1, "L", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}
