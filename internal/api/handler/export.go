package handler

import (
	"encoding/csv"
	"io"
	"smartai/internal/domain/model"
	"strconv"

	"github.com/gosimple/slug"
)

var exportHeader = []string{
	"student_id", "student_name", "question_index", "question_id", "number", "question_type",
	"state", "score", "max_score", "confidence", "feedback", "error",
}

// exportFilename is derived from the job label when there is one.
func exportFilename(res *model.JobResults) string {
	name := slug.Make(res.Label)
	if name == "" {
		name = res.JobID
	}
	return "grading-" + name + ".csv"
}

// writeResultsCSV writes one row per (student, question) in display order.
func writeResultsCSV(w io.Writer, res *model.JobResults) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, st := range res.Students {
		for _, q := range st.Questions {
			row := []string{
				st.StudentID,
				st.StudentName,
				strconv.Itoa(q.Index),
				q.QuestionID,
				q.Number,
				string(q.QuestionType),
				string(q.State),
				formatOptional(q.Score),
				formatOptional(q.MaxScore),
				formatOptional(q.Confidence),
				q.Feedback,
				q.Error,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
