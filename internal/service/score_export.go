package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/stemsi/cbt-backend/internal/model"
)

const exportSheet = "Scores"

var exportHeaders = []string{
	"Attempt ID", "User ID", "Username", "Full Name", "Status",
	"Started At", "Completed At", "Termination Reason", "Score", "Percentage",
}

// Export renders the score listing of an exam as an XLSX workbook. It returns
// the exam so the caller can name the download.
func (s *ScoreService) Export(ctx context.Context, examID int64) (*model.ExamDetail, *bytes.Buffer, error) {
	exam, rows, err := s.List(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, nil, fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range exportHeaders {
		if err := setCell(f, col+1, 1, h); err != nil {
			return nil, nil, err
		}
	}
	for i, r := range rows {
		values := []any{
			r.AttemptID,
			r.UserID,
			r.Username,
			r.FullName,
			string(r.Status),
			formatTime(r.TimeStarted),
			formatTime(r.TimeCompleted),
			derefString(r.TerminationReason),
			r.Score,
			r.Percent,
		}
		for col, v := range values {
			if err := setCell(f, col+1, i+2, v); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, nil, fmt.Errorf("freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Info().Int64("exam_id", examID).Int("rows", len(rows)).Msg("Scores exported")
	return exam, buf, nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(exportSheet, cell, v); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
