package mapper

import (
	"strings"

	"github.com/goccy/go-json"
)

// Source payload shapes, matching the API's PascalCase JSON. Only the fields
// the mappers read are declared; unknown fields are ignored on decode.

// BusinessCard is the nested card sub-object carried by contacts and
// organizations. A record may hold several; the one flagged primary wins.
type BusinessCard struct {
	IsPrimaryCard  bool      `json:"IsPrimaryCard"`
	FullName       string    `json:"FullName"`
	EmailAddresses []string  `json:"EmailAddresses"`
	PhoneNumbers   []Phone   `json:"PhoneNumbers"`
	Addresses      []Address `json:"Addresses"`
}

type Phone struct {
	CountryCode string `json:"CountryCode"`
	Number      string `json:"Number"`
	Label       string `json:"Label"`
}

type Address struct {
	AddressLines        string `json:"AddressLines"`
	City                string `json:"City"`
	StateProvinceCounty string `json:"StateProvinceCounty"`
	ZipCode             string `json:"ZipCode"`
	CountryCode         string `json:"CountryCode"`
}

type sourceUser struct {
	UserKey      string `json:"Id"`
	Name         string `json:"Name"`
	EmailAddress string `json:"EmailAddress"`
}

type sourceContact struct {
	ContactKey           string         `json:"ContactKey"`
	FullName             string         `json:"FullName"`
	FirstName            string         `json:"FirstName"`
	LastName             string         `json:"LastName"`
	PreferredName        string         `json:"PreferredName"`
	ContactType          string         `json:"ContactType"`
	BusinessCards        []BusinessCard `json:"BusinessCards"`
	LastModifiedDateTime string         `json:"LastModifiedDateTime"`
}

type sourceOrganization struct {
	OrganizationKey      string         `json:"OrganizationKey"`
	FullName             string         `json:"FullName"`
	EntityType           string         `json:"EntityType"`
	ContactKey           string         `json:"ContactKey"`
	BusinessCards        []BusinessCard `json:"BusinessCards"`
	LastModifiedDateTime string         `json:"LastModifiedDateTime"`
}

type sourceClientGroup struct {
	ClientGroupKey       string              `json:"ClientGroupKey"`
	FullName             string              `json:"FullName"`
	GroupType            string              `json:"Type"`
	Members              []clientGroupMember `json:"Members"`
	LastModifiedDateTime string              `json:"LastModifiedDateTime"`
}

type clientGroupMember struct {
	Key string `json:"Key"`
}

type sourceWorkItem struct {
	WorkItemKey          string `json:"WorkItemKey"`
	Title                string `json:"Title"`
	WorkType             string `json:"WorkType"`
	PrimaryStatus        string `json:"PrimaryStatus"`
	SecondaryStatus      string `json:"SecondaryStatus"`
	ClientKey            string `json:"ClientKey"`
	ClientType           string `json:"ClientType"`
	AssigneeEmailAddress string `json:"AssigneeEmailAddress"`
	StartDate            string `json:"StartDate"`
	DueDate              string `json:"DueDate"`
	DeadlineDate         string `json:"DeadlineDate"`
	CompletedDate        string `json:"CompletedDate"`
	TaxYear              *int   `json:"TaxYear"`
	FiscalYearEndDate    string `json:"FiscalYearEndDate"`
	LastModifiedDateTime string `json:"LastModifiedDateTime"`
}

type sourceTask struct {
	TaskKey              string `json:"TaskKey"`
	WorkItemKey          string `json:"WorkItemKey"`
	Title                string `json:"Title"`
	Name                 string `json:"Name"`
	Status               string `json:"Status"`
	AssigneeEmailAddress string `json:"AssigneeEmailAddress"`
	DueDate              string `json:"DueDate"`
	LastModifiedDateTime string `json:"LastModifiedDateTime"`
}

type sourceTimesheet struct {
	TimesheetKey         string  `json:"TimesheetKey"`
	UserKey              string  `json:"UserKey"`
	StartDate            string  `json:"StartDate"`
	EndDate              string  `json:"EndDate"`
	Status               string  `json:"Status"`
	TotalMinutes         float64 `json:"TotalMinutes"`
	LastModifiedDateTime string  `json:"LastModifiedDateTime"`
}

type sourceInvoice struct {
	InvoiceKey       string  `json:"InvoiceKey"`
	InvoiceNumber    string  `json:"InvoiceNumber"`
	ClientKey        string  `json:"ClientKey"`
	ClientType       string  `json:"ClientType"`
	Status           string  `json:"Status"`
	InvoiceDate      string  `json:"InvoiceDate"`
	TotalAmount      float64 `json:"TotalAmount"`
	LastModifiedDate string  `json:"LastModifiedDate"`
}

type sourceNote struct {
	NoteKey              string `json:"NoteKey"`
	Subject              string `json:"Subject"`
	Body                 string `json:"Body"`
	AuthorEmailAddress   string `json:"AuthorEmailAddress"`
	ContactKey           string `json:"ContactKey"`
	WorkItemKey          string `json:"WorkItemKey"`
	TodoDate             string `json:"TodoDate"`
	LastModifiedDateTime string `json:"LastModifiedDateTime"`
}

func decode(raw json.RawMessage, target any) error {
	return json.Unmarshal(raw, target)
}

// primaryCard picks the card flagged primary, or the first card when none is
// flagged. Returns a zero card when the record carries none.
func primaryCard(cards []BusinessCard) BusinessCard {
	for _, card := range cards {
		if card.IsPrimaryCard {
			return card
		}
	}
	if len(cards) > 0 {
		return cards[0]
	}
	return BusinessCard{}
}

// primaryEmail extracts the first email from a card's nested list.
func primaryEmail(card BusinessCard) string {
	if len(card.EmailAddresses) > 0 {
		return card.EmailAddresses[0]
	}
	return ""
}

// primaryPhone renders the first phone number on a card.
func primaryPhone(card BusinessCard) string {
	if len(card.PhoneNumbers) == 0 {
		return ""
	}
	phone := card.PhoneNumbers[0]
	return firstNonEmpty(phone.CountryCode+" "+phone.Number, phone.Number)
}

// primaryAddress renders the first address on a card as a single line.
func primaryAddress(card BusinessCard) string {
	if len(card.Addresses) == 0 {
		return ""
	}
	addr := card.Addresses[0]
	parts := []string{}
	for _, part := range []string{addr.AddressLines, addr.City, addr.StateProvinceCounty, addr.ZipCode, addr.CountryCode} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}
