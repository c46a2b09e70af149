package domain

// EntityKind identifies one mirrored resource type from the source system.
type EntityKind string

const (
	KindUser         EntityKind = "users"
	KindContact      EntityKind = "contacts"
	KindOrganization EntityKind = "organizations"
	KindClientGroup  EntityKind = "client_groups"
	KindWorkItem     EntityKind = "work_items"
	KindTask         EntityKind = "tasks"
	KindTimesheet    EntityKind = "timesheets"
	KindInvoice      EntityKind = "invoices"
	KindNote         EntityKind = "notes"
)

// SyncOrder is the fixed dependency order for a sync run: identity entities
// first, then grouping entities, then transactional entities, then the
// records that hang off them. Cross references in later kinds resolve against
// already-fresh parent rows when the order is respected.
var SyncOrder = []EntityKind{
	KindUser,
	KindContact,
	KindOrganization,
	KindClientGroup,
	KindWorkItem,
	KindTask,
	KindTimesheet,
	KindInvoice,
	KindNote,
}

// ParseEntityKind returns the kind matching the given name, or false when the
// name is unknown.
func ParseEntityKind(name string) (EntityKind, bool) {
	for _, kind := range SyncOrder {
		if string(kind) == name {
			return kind, true
		}
	}
	return "", false
}
