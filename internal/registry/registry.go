// Package registry binds each entity kind to its source endpoint, local
// table, and mapper. The registry is built and validated once at startup so
// an unknown or misconfigured kind is a configuration-time error rather than
// a runtime no-op.
package registry

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/mapper"
)

// MapFunc converts one source object into a flat record.
type MapFunc func(json.RawMessage) (domain.Record, error)

// ParentRef names a best-effort parent reference resolved during webhook
// ingestion. A miss (parent not yet synced) is tolerated.
type ParentRef struct {
	Kind   domain.EntityKind
	Column string
}

// Descriptor is the full wiring for one entity kind.
type Descriptor struct {
	Kind          domain.EntityKind
	ResourceType  string // webhook event-type prefix, e.g. "Contact"
	Endpoint      string // source API resource path
	Table         string
	KeyColumn     string
	KeyField      string // webhook Data field carrying the external key
	Columns       []string
	Expand        []string
	ModifiedField string // source-side filter field; empty means no incremental support
	HasList       bool   // false for resources with no bulk list endpoint
	Map           MapFunc
	Parent        *ParentRef
}

// Registry holds the validated descriptor set in dependency order.
type Registry struct {
	byKind map[domain.EntityKind]*Descriptor
	order  []*Descriptor
}

// New builds the full descriptor set and validates it.
func New() (*Registry, error) {
	descriptors := []*Descriptor{
		{
			Kind:         domain.KindUser,
			ResourceType: "User",
			Endpoint:     "Users",
			Table:        "users",
			KeyColumn:    "user_key",
			KeyField:     "UserKey",
			Columns:      []string{"full_name", "email", "deep_link"},
			HasList:      true,
			Map:          mapper.MapUser,
		},
		{
			Kind:          domain.KindContact,
			ResourceType:  "Contact",
			Endpoint:      "Contacts",
			Table:         "contacts",
			KeyColumn:     "contact_key",
			KeyField:      "ContactKey",
			Columns:       []string{"full_name", "first_name", "last_name", "preferred_name", "contact_type", "primary_email", "primary_phone", "primary_address", "deep_link"},
			Expand:        []string{"BusinessCards"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapContact,
		},
		{
			Kind:          domain.KindOrganization,
			ResourceType:  "Organization",
			Endpoint:      "Organizations",
			Table:         "organizations",
			KeyColumn:     "organization_key",
			KeyField:      "OrganizationKey",
			Columns:       []string{"full_name", "entity_type", "contact_key", "primary_email", "primary_phone", "primary_address", "deep_link"},
			Expand:        []string{"BusinessCards"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapOrganization,
		},
		{
			Kind:          domain.KindClientGroup,
			ResourceType:  "ClientGroup",
			Endpoint:      "ClientGroups",
			Table:         "client_groups",
			KeyColumn:     "client_group_key",
			KeyField:      "ClientGroupKey",
			Columns:       []string{"full_name", "group_type", "member_count", "deep_link"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapClientGroup,
		},
		{
			Kind:          domain.KindWorkItem,
			ResourceType:  "WorkItem",
			Endpoint:      "WorkItems",
			Table:         "work_items",
			KeyColumn:     "work_item_key",
			KeyField:      "WorkItemKey",
			Columns:       []string{"title", "work_type", "primary_status", "secondary_status", "client_key", "client_type", "assignee_email", "start_date", "due_date", "deadline_date", "completed_date", "tax_year", "deep_link"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapWorkItem,
		},
		{
			Kind:          domain.KindTask,
			ResourceType:  "Task",
			Endpoint:      "Tasks",
			Table:         "tasks",
			KeyColumn:     "task_key",
			KeyField:      "TaskKey",
			Columns:       []string{"work_item_key", "title", "status", "assignee_email", "due_date"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapTask,
			Parent:        &ParentRef{Kind: domain.KindWorkItem, Column: "work_item_key"},
		},
		{
			Kind:          domain.KindTimesheet,
			ResourceType:  "Timesheet",
			Endpoint:      "Timesheets",
			Table:         "timesheets",
			KeyColumn:     "timesheet_key",
			KeyField:      "TimesheetKey",
			Columns:       []string{"user_key", "status", "start_date", "end_date", "total_minutes"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       true,
			Map:           mapper.MapTimesheet,
		},
		{
			Kind:          domain.KindInvoice,
			ResourceType:  "Invoice",
			Endpoint:      "Invoices",
			Table:         "invoices",
			KeyColumn:     "invoice_key",
			KeyField:      "InvoiceKey",
			Columns:       []string{"invoice_number", "client_key", "client_type", "status", "invoice_date", "total_amount", "deep_link"},
			ModifiedField: "LastModifiedDate",
			HasList:       true,
			Map:           mapper.MapInvoice,
		},
		{
			// Notes have no bulk list endpoint; webhook resolution is the
			// only way a note reaches the store.
			Kind:          domain.KindNote,
			ResourceType:  "Note",
			Endpoint:      "Notes",
			Table:         "notes",
			KeyColumn:     "note_key",
			KeyField:      "NoteKey",
			Columns:       []string{"subject", "body", "author_email", "contact_key", "work_item_key", "todo_date"},
			ModifiedField: "LastModifiedDateTime",
			HasList:       false,
			Map:           mapper.MapNote,
			Parent:        &ParentRef{Kind: domain.KindWorkItem, Column: "work_item_key"},
		},
	}

	reg := &Registry{byKind: make(map[domain.EntityKind]*Descriptor, len(descriptors))}
	for _, desc := range descriptors {
		if err := validate(desc); err != nil {
			return nil, err
		}
		if _, dup := reg.byKind[desc.Kind]; dup {
			return nil, fmt.Errorf("registry: duplicate descriptor for kind %s", desc.Kind)
		}
		reg.byKind[desc.Kind] = desc
	}

	// Order descriptors by the fixed dependency order and require full
	// coverage in both directions.
	for _, kind := range domain.SyncOrder {
		desc, ok := reg.byKind[kind]
		if !ok {
			return nil, fmt.Errorf("registry: no descriptor for kind %s", kind)
		}
		reg.order = append(reg.order, desc)
	}
	if len(reg.byKind) != len(domain.SyncOrder) {
		return nil, fmt.Errorf("registry: %d descriptors for %d kinds", len(reg.byKind), len(domain.SyncOrder))
	}

	return reg, nil
}

func validate(desc *Descriptor) error {
	switch {
	case desc.Kind == "":
		return fmt.Errorf("registry: descriptor with empty kind")
	case desc.Table == "" || desc.KeyColumn == "" || desc.KeyField == "":
		return fmt.Errorf("registry: descriptor %s is missing table wiring", desc.Kind)
	case desc.Endpoint == "" || desc.ResourceType == "":
		return fmt.Errorf("registry: descriptor %s is missing source wiring", desc.Kind)
	case desc.Map == nil:
		return fmt.Errorf("registry: descriptor %s has no mapper", desc.Kind)
	case len(desc.Columns) == 0:
		return fmt.Errorf("registry: descriptor %s has no columns", desc.Kind)
	}
	for _, col := range desc.Columns {
		if col == desc.KeyColumn {
			return fmt.Errorf("registry: descriptor %s lists its key column among data columns", desc.Kind)
		}
	}
	return nil
}

// Get returns the descriptor for a kind.
func (r *Registry) Get(kind domain.EntityKind) (*Descriptor, error) {
	desc, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("registry: unknown entity kind %q", kind)
	}
	return desc, nil
}

// Ordered returns all descriptors in dependency order.
func (r *Registry) Ordered() []*Descriptor {
	return r.order
}

// ResolveEvent splits a webhook event type such as "ContactUpdated" into the
// owning descriptor and the action suffix. Longer resource-type prefixes win
// so e.g. "WorkItemDeleted" never matches a shorter prefix.
func (r *Registry) ResolveEvent(eventType string) (*Descriptor, string, error) {
	var match *Descriptor
	for _, desc := range r.order {
		if strings.HasPrefix(eventType, desc.ResourceType) {
			if match == nil || len(desc.ResourceType) > len(match.ResourceType) {
				match = desc
			}
		}
	}
	if match == nil {
		return nil, "", fmt.Errorf("registry: unknown resource type in event %q", eventType)
	}
	return match, strings.TrimPrefix(eventType, match.ResourceType), nil
}
