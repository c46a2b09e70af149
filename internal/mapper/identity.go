package mapper

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/clearledger/karbonsync/internal/domain"
)

// ErrMissingKey is returned when a source object carries no external entity
// key. Such a record cannot be upserted and is counted as failed without
// aborting its batch.
var ErrMissingKey = errors.New("mapper: source object has no entity key")

// MapUser flattens a source user. The users resource carries no modification
// timestamp, so user syncs are always full fetches.
func MapUser(raw json.RawMessage) (domain.Record, error) {
	var src sourceUser
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode user: %w", err)
	}
	if src.UserKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.UserKey,
		Fields: map[string]any{
			"full_name": nullable(src.Name),
			"email":     nullable(src.EmailAddress),
			"deep_link": deepLinkBase + "/people/" + src.UserKey,
		},
	}, nil
}

// MapContact flattens a source contact. The display name falls back through
// the explicit full name, the primary business card's full name, first+last
// concatenation, and finally the preferred name.
func MapContact(raw json.RawMessage) (domain.Record, error) {
	var src sourceContact
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode contact: %w", err)
	}
	if src.ContactKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	card := primaryCard(src.BusinessCards)
	fullName := firstNonEmpty(
		src.FullName,
		card.FullName,
		joinName(src.FirstName, src.LastName),
		src.PreferredName,
	)

	return domain.Record{
		Key: src.ContactKey,
		Fields: map[string]any{
			"full_name":       nullable(fullName),
			"first_name":      nullable(src.FirstName),
			"last_name":       nullable(src.LastName),
			"preferred_name":  nullable(src.PreferredName),
			"contact_type":    nullable(src.ContactType),
			"primary_email":   nullable(primaryEmail(card)),
			"primary_phone":   nullable(primaryPhone(card)),
			"primary_address": nullable(primaryAddress(card)),
			"deep_link":       deepLinkBase + "/contacts/" + src.ContactKey,
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}

// MapOrganization flattens a source organization, pulling scalar contact
// details off its primary business card.
func MapOrganization(raw json.RawMessage) (domain.Record, error) {
	var src sourceOrganization
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode organization: %w", err)
	}
	if src.OrganizationKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	card := primaryCard(src.BusinessCards)

	return domain.Record{
		Key: src.OrganizationKey,
		Fields: map[string]any{
			"full_name":       nullable(firstNonEmpty(src.FullName, card.FullName)),
			"entity_type":     nullable(src.EntityType),
			"contact_key":     nullable(src.ContactKey),
			"primary_email":   nullable(primaryEmail(card)),
			"primary_phone":   nullable(primaryPhone(card)),
			"primary_address": nullable(primaryAddress(card)),
			"deep_link":       deepLinkBase + "/organizations/" + src.OrganizationKey,
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}

// MapClientGroup flattens a source client group.
func MapClientGroup(raw json.RawMessage) (domain.Record, error) {
	var src sourceClientGroup
	if err := decode(raw, &src); err != nil {
		return domain.Record{}, fmt.Errorf("mapper: failed to decode client group: %w", err)
	}
	if src.ClientGroupKey == "" {
		return domain.Record{}, ErrMissingKey
	}

	return domain.Record{
		Key: src.ClientGroupKey,
		Fields: map[string]any{
			"full_name":    nullable(src.FullName),
			"group_type":   nullable(src.GroupType),
			"member_count": len(src.Members),
			"deep_link":    deepLinkBase + "/client-groups/" + src.ClientGroupKey,
		},
		ModifiedAt: parseTime(src.LastModifiedDateTime),
	}, nil
}
