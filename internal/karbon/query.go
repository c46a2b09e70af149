package karbon

import (
	"net/url"
	"strconv"
	"strings"
)

// QueryOptions carries the OData-style parameters the source API understands.
// Zero values are omitted from the encoded query string.
type QueryOptions struct {
	Filter  string
	Select  []string
	Expand  []string
	OrderBy string
	Top     int
	Skip    int
}

// Encode renders the options as URL query values.
func (o QueryOptions) Encode() url.Values {
	values := url.Values{}
	if o.Filter != "" {
		values.Set("$filter", o.Filter)
	}
	if len(o.Select) > 0 {
		values.Set("$select", strings.Join(o.Select, ","))
	}
	if len(o.Expand) > 0 {
		values.Set("$expand", strings.Join(o.Expand, ","))
	}
	if o.OrderBy != "" {
		values.Set("$orderby", o.OrderBy)
	}
	if o.Top > 0 {
		values.Set("$top", strconv.Itoa(o.Top))
	}
	if o.Skip > 0 {
		values.Set("$skip", strconv.Itoa(o.Skip))
	}
	return values
}
