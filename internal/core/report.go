package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ReportColumns is the header row of an issue report.
var ReportColumns = []string{"row_index", "field", "severity", "code", "message"}

// ReportRow is one line of an issue report.
type ReportRow struct {
	Severity Severity
	Issue
}

// ReportRows orders findings for export: errors (validation and commit)
// first, then warnings, each by ascending row index. Findings sharing a row
// keep their recorded order.
func ReportRows(issues Issues, commitErrors []Issue) []ReportRow {
	errs := make([]Issue, 0, len(issues.Errors)+len(commitErrors))
	errs = append(errs, issues.Errors...)
	errs = append(errs, commitErrors...)
	sortIssues(errs)

	warnings := append([]Issue(nil), issues.Warnings...)
	sortIssues(warnings)

	rows := make([]ReportRow, 0, len(errs)+len(warnings))
	for _, is := range errs {
		rows = append(rows, ReportRow{Severity: SeverityError, Issue: is})
	}
	for _, is := range warnings {
		rows = append(rows, ReportRow{Severity: SeverityWarning, Issue: is})
	}
	return rows
}

// WriteReport writes the issue report as CSV. With no findings the output
// is the header row alone.
func WriteReport(w io.Writer, issues Issues, commitErrors []Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportColumns); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, row := range ReportRows(issues, commitErrors) {
		record := []string{
			strconv.Itoa(row.RowIndex),
			row.Field,
			string(row.Severity),
			string(row.Code),
			row.Message,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderReport returns the report for a session as CSV bytes.
func RenderReport(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, s.Issues, s.CommitErrors); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sortedCodes is used in logs to summarize which issue codes occurred.
func sortedCodes(issues []Issue) []string {
	seen := make(map[IssueCode]bool)
	var out []string
	for _, is := range issues {
		if !seen[is.Code] {
			seen[is.Code] = true
			out = append(out, string(is.Code))
		}
	}
	sort.Strings(out)
	return out
}
