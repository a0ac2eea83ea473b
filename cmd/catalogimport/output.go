package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/core"
)

// maxIssueLines caps the issues printed per severity; the report has all.
const maxIssueLines = 20

func (c *cli) printSession(w io.Writer, sess *core.Session) error {
	if c.opts.json {
		return writeJSON(w, sess)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", sess.ID)
	fmt.Fprintf(tw, "status\t%s\n", sess.Status())
	fmt.Fprintf(tw, "scope\t%s\n", sess.Scope)
	fmt.Fprintf(tw, "type\t%s\n", sess.EntityType)
	if sess.FileName != "" {
		fmt.Fprintf(tw, "file\t%s\n", sess.FileName)
	}
	fmt.Fprintf(tw, "rows\t%d\n", len(sess.Draft.Records))
	fmt.Fprintf(tw, "errors\t%d\n", len(sess.Issues.Errors))
	fmt.Fprintf(tw, "warnings\t%d\n", len(sess.Issues.Warnings))
	if sess.Summary != nil {
		fmt.Fprintf(tw, "created\t%d\n", sess.Summary.Created)
		fmt.Fprintf(tw, "updated\t%d\n", sess.Summary.Updated)
	}
	if st, ok := sess.State.(core.FailedState); ok {
		fmt.Fprintf(tw, "reason\t%s\n", st.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	printIssues(w, "commit errors", sess.CommitErrors)
	printIssues(w, "errors", sess.Issues.Errors)
	printIssues(w, "warnings", sess.Issues.Warnings)
	return nil
}

func printIssues(w io.Writer, title string, issues []core.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, is := range issues {
		if i == maxIssueLines {
			fmt.Fprintf(tw, "  ...\t%d more (see report)\n", len(issues)-maxIssueLines)
			break
		}
		row := "-"
		if is.RowIndex > 0 {
			row = fmt.Sprintf("row %d", is.RowIndex)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", row, dash(is.Field), is.Code, is.Message)
	}
	tw.Flush()
}

func printSessionTable(w io.Writer, sessions []*core.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSCOPE\tTYPE\tOWNER\tROWS\tERRORS\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Status(), s.Scope, s.EntityType, s.Owner,
			len(s.Draft.Records), len(s.Issues.Errors), s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printSchemas(w io.Writer, schemas []core.SchemaInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range schemas {
		fmt.Fprintf(tw, "%s\t%s\tkey: %s\n", s.EntityType, s.Label, strings.Join(s.NaturalKey, ", "))
		for _, col := range s.Columns {
			req := ""
			if col.Required {
				req = "required"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", col.Name, col.Type, req, strings.Join(col.Aliases, ", "))
		}
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// describe renders err for the terminal: the catalogue message for known
// failures, the raw error otherwise.
func describe(err error) string {
	if !core.IsUserFacing(err) {
		return err.Error()
	}
	msg := core.FormatUserError(err)
	var ce *core.ConcurrencyError
	if errors.As(err, &ce) && ce.ExistingSessionID != "" {
		msg += fmt.Sprintf(" [open session: %s]", ce.ExistingSessionID)
	}
	return msg
}
