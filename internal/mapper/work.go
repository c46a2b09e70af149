package mapper

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/clearledger/karbonsync/internal/domain"
)

// MapWorkItem flattens a source work item. The tax year is derived by trying
// the explicit field, then the fiscal-year-end date's calendar year, then a
// 4-digit year found in the title; absence of all three leaves it null.
func MapWorkItem(raw json.RawMessage) (domain.Record, error) {
	var src sourceWorkItem
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode work item: %w", err)
	}
	if src.WorkItemKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	taxYear := src.TaxYear
	if taxYear == nil {
		if fye := parseTime(src.FiscalYearEndDate); fye != nil {
			year := fye.Year()
			taxYear = &year
		}
	}
	if taxYear == nil {
		taxYear = yearFromTitle(src.Title)
	}

	return domain.Record{
		Key: src.WorkItemKey,
		Fields: map[string]any{
			"title":            nullable(src.Title),
			"work_type":        nullable(src.WorkType),
			"primary_status":   nullable(src.PrimaryStatus),
			"secondary_status": nullable(src.SecondaryStatus),
			"client_key":       nullable(src.ClientKey),
			"client_type":      nullable(src.ClientType),
			"assignee_email":   nullable(src.AssigneeEmailAddress),
			"start_date":       nullableTime(parseTime(src.StartDate)),
			"due_date":         nullableTime(parseTime(src.DueDate)),
			"deadline_date":    nullableTime(parseTime(src.DeadlineDate)),
			"completed_date":   nullableTime(parseTime(src.CompletedDate)),
			"tax_year":         nullableInt(taxYear),
			"deep_link":        deepLinkBase + "/work/" + src.WorkItemKey,
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}

// MapTask flattens a work item task. The title falls back from Title to Name;
// older payloads used the latter.
func MapTask(raw json.RawMessage) (domain.Record, error) {
	var src sourceTask
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode task: %w", err)
	}
	if src.TaskKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.TaskKey,
		Fields: map[string]any{
			"work_item_key":  nullable(src.WorkItemKey),
			"title":          nullable(firstNonEmpty(src.Title, src.Name)),
			"status":         nullable(src.Status),
			"assignee_email": nullable(src.AssigneeEmailAddress),
			"due_date":       nullableTime(parseTime(src.DueDate)),
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}

// MapTimesheet flattens a timesheet.
func MapTimesheet(raw json.RawMessage) (domain.Record, error) {
	var src sourceTimesheet
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode timesheet: %w", err)
	}
	if src.TimesheetKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.TimesheetKey,
		Fields: map[string]any{
			"user_key":      nullable(src.UserKey),
			"status":        nullable(src.Status),
			"start_date":    nullableTime(parseTime(src.StartDate)),
			"end_date":      nullableTime(parseTime(src.EndDate)),
			"total_minutes": src.TotalMinutes,
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}

// MapInvoice flattens an invoice. The invoices resource reports modification
// time under LastModifiedDate, not LastModifiedDateTime.
func MapInvoice(raw json.RawMessage) (domain.Record, error) {
	var src sourceInvoice
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode invoice: %w", err)
	}
	if src.InvoiceKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.InvoiceKey,
		Fields: map[string]any{
			"invoice_number": nullable(src.InvoiceNumber),
			"client_key":     nullable(src.ClientKey),
			"client_type":    nullable(src.ClientType),
			"status":         nullable(src.Status),
			"invoice_date":   nullableTime(parseTime(src.InvoiceDate)),
			"total_amount":   src.TotalAmount,
			"deep_link":      deepLinkBase + "/billing/invoices/" + src.InvoiceKey,
		},
		ModifiedAt: parseTime(src.LastModifiedDate),
	}, nil
}

// MapNote flattens a note. Notes have no bulk list endpoint; they reach this
// mapper exclusively through webhook resolution.
func MapNote(raw json.RawMessage) (domain.Record, error) {
	var src sourceNote
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode note: %w", err)
	}
	if src.NoteKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.NoteKey,
		Fields: map[string]any{
			"subject":       nullable(src.Subject),
			"body":          nullable(src.Body),
			"author_email":  nullable(src.AuthorEmailAddress),
			"contact_key":   nullable(src.ContactKey),
			"work_item_key": nullable(src.WorkItemKey),
			"todo_date":     nullableTime(parseTime(src.TodoDate)),
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}
