package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eventmesa/regsvc/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatMaybeTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func printApplicants(items []domain.User) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Email,
			item.Role,
			strconv.FormatBool(item.Admitted),
			strconv.FormatBool(item.Confirmed),
			formatMaybeTime(item.InitialProfileFormSubmittedAt),
			formatMaybeTime(item.ConfirmationExpiresAt),
		})
	}
	printTable([]string{"ID", "EMAIL", "ROLE", "ADMITTED", "CONFIRMED", "SUBMITTED_AT", "CONFIRM_BY"}, rows)
}

func printQuestions(items []domain.Question) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		parent := "-"
		if item.ParentID != nil {
			parent = *item.ParentID
			if item.ShowIfParentHasValue != nil {
				parent += "=" + *item.ShowIfParentHasValue
			}
		}
		rows = append(rows, []string{
			item.ID,
			string(item.FormKind),
			string(item.Type),
			item.Title,
			strconv.FormatBool(item.Mandatory),
			parent,
			formatQuestionConfig(item),
		})
	}
	printTable([]string{"ID", "FORM", "TYPE", "TITLE", "MANDATORY", "SHOWN_IF", "CONFIG"}, rows)
}

func formatQuestionConfig(q domain.Question) string {
	switch {
	case q.Number != nil:
		parts := make([]string, 0, 3)
		if q.Number.MinValue != nil {
			parts = append(parts, "min="+strconv.FormatFloat(*q.Number.MinValue, 'f', -1, 64))
		}
		if q.Number.MaxValue != nil {
			parts = append(parts, "max="+strconv.FormatFloat(*q.Number.MaxValue, 'f', -1, 64))
		}
		if q.Number.AllowDecimals {
			parts = append(parts, "decimals")
		}
		if len(parts) == 0 {
			return "-"
		}
		return strings.Join(parts, " ")
	case q.Choices != nil:
		suffix := ""
		if q.Choices.AllowMultiple {
			suffix = " (multi)"
		}
		return strings.Join(q.Choices.Choices, "|") + suffix
	default:
		return "-"
	}
}

func printSettings(s domain.Settings) {
	printKV([][2]string{
		{"event_name", s.EventName},
		{"allow_profile_form_from", formatTime(s.AllowProfileFormFrom)},
		{"allow_profile_form_until", formatTime(s.AllowProfileFormUntil)},
		{"hours_to_confirm", strconv.Itoa(s.HoursToConfirm)},
	})
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetType,
			item.TargetID,
			item.ActorUserEmail,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
