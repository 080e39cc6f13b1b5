package recommend

import (
	"context"
	"net/http"
	"strconv"
)

// Segment and search fields.
const (
	FieldCustomerID = "customer_id"
	FieldEmail      = "email"
)

// ContactAPI covers contact search and the contact batch, segment and list
// endpoints.
type ContactAPI struct {
	client   *Client
	endpoint string

	Batch   *ContactBatchAPI
	Segment *ContactSegmentAPI
	List    *ContactListAPI
}

func newContactAPI(c *Client) *ContactAPI {
	return &ContactAPI{
		client:   c,
		endpoint: "contact",
		Batch:    &ContactBatchAPI{client: c, endpoint: "contact/batch"},
		Segment:  &ContactSegmentAPI{Resource: newResource(c, "contact/segment", CapCRUD)},
		List:     &ContactListAPI{Resource: newResource(c, "contact/list", CapCRUD)},
	}
}

// ContactSearch filters Search. Empty fields are not sent.
type ContactSearch struct {
	Emails      []string
	CustomerIDs []string
	ListCode    string
	Skip        int
	Limit       int
}

// Search looks contacts up by email, customer id or list.
func (a *ContactAPI) Search(ctx context.Context, q ContactSearch, opts ...CallOption) (*Response, error) {
	data := map[string]any{}
	if len(q.Emails) > 0 {
		data["emails"] = q.Emails
	}
	if len(q.CustomerIDs) > 0 {
		data["customer_ids"] = q.CustomerIDs
	}
	if q.ListCode != "" {
		data["list_code"] = q.ListCode
	}
	opts = append(pageOptions(q.Skip, q.Limit), opts...)
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "search"), data, opts)
}

// ContactBatchAPI upserts contacts in bulk.
type ContactBatchAPI struct {
	client   *Client
	endpoint string
}

// CustomerID upserts contacts keyed by customer id.
func (a *ContactBatchAPI) CustomerID(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, FieldCustomerID), data, opts)
}

// Email upserts contacts keyed by email.
func (a *ContactBatchAPI) Email(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, FieldEmail), data, opts)
}

// ContactSegmentAPI is the contact segment resource.
type ContactSegmentAPI struct {
	*Resource
}

// SegmentSearch filters ContactSegmentAPI.Search.
type SegmentSearch struct {
	Field       string
	Identifiers []string
	Skip        int
	Limit       int
}

// Search lists the members of segment id matching the identifiers.
func (a *ContactSegmentAPI) Search(ctx context.Context, id string, q SegmentSearch, opts ...CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	data := map[string]any{}
	if q.Field != "" {
		if err := validateField(q.Field); err != nil {
			return nil, err
		}
		data["field"] = q.Field
	}
	if len(q.Identifiers) > 0 {
		data["identifiers"] = q.Identifiers
	}
	opts = append(pageOptions(q.Skip, q.Limit), opts...)
	return a.send(ctx, http.MethodPost, a.path(id, "identifiers", "search"), data, opts)
}

// Attach adds contacts to segment id.
func (a *ContactSegmentAPI) Attach(ctx context.Context, id, field string, identifiers []string, opts ...CallOption) (*Response, error) {
	return a.membership(ctx, "attach", id, field, identifiers, opts)
}

// Detach removes contacts from segment id.
func (a *ContactSegmentAPI) Detach(ctx context.Context, id, field string, identifiers []string, opts ...CallOption) (*Response, error) {
	return a.membership(ctx, "detach", id, field, identifiers, opts)
}

func (a *ContactSegmentAPI) membership(ctx context.Context, action, id, field string, identifiers []string, opts []CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := validateField(field); err != nil {
		return nil, err
	}
	data := map[string]any{
		"field":       field,
		"identifiers": identifiers,
	}
	return a.send(ctx, http.MethodPost, a.path(id, action), data, opts)
}

// ContactListAPI is the contact list resource.
type ContactListAPI struct {
	*Resource
}

// ContactRefs names contacts by any mix of identifiers. At least one must be
// set.
type ContactRefs struct {
	CustomerIDs []string
	Emails      []string
	PushTokens  []string
}

func (r ContactRefs) body() (map[string]any, error) {
	if len(r.CustomerIDs) == 0 && len(r.Emails) == 0 && len(r.PushTokens) == 0 {
		return nil, invalidArgument("emails, customer ids or push tokens are required")
	}
	data := map[string]any{}
	if len(r.Emails) > 0 {
		data["emails"] = r.Emails
	}
	if len(r.CustomerIDs) > 0 {
		data["customer_ids"] = r.CustomerIDs
	}
	if len(r.PushTokens) > 0 {
		data["push_tokens"] = r.PushTokens
	}
	return data, nil
}

// Attach adds contacts to list id.
func (a *ContactListAPI) Attach(ctx context.Context, id string, refs ContactRefs, opts ...CallOption) (*Response, error) {
	return a.membership(ctx, "attach", id, refs, opts)
}

// Detach removes contacts from list id.
func (a *ContactListAPI) Detach(ctx context.Context, id string, refs ContactRefs, opts ...CallOption) (*Response, error) {
	return a.membership(ctx, "detach", id, refs, opts)
}

// Clean removes every contact from list id.
func (a *ContactListAPI) Clean(ctx context.Context, id string, opts ...CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	return a.send(ctx, http.MethodPost, a.path(id, "clean"), nil, opts)
}

func (a *ContactListAPI) membership(ctx context.Context, action, id string, refs ContactRefs, opts []CallOption) (*Response, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	data, err := refs.body()
	if err != nil {
		return nil, err
	}
	return a.send(ctx, http.MethodPost, a.path(id, action), data, opts)
}

func validateField(field string) error {
	if field != FieldCustomerID && field != FieldEmail {
		return invalidArgument("field must be %s or %s, got %q", FieldCustomerID, FieldEmail, field)
	}
	return nil
}

// pageOptions turns skip and limit into query parameters. Zero values are
// omitted.
func pageOptions(skip, limit int) []CallOption {
	var opts []CallOption
	if skip > 0 {
		opts = append(opts, WithQuery("skip", strconv.Itoa(skip)))
	}
	if limit > 0 {
		opts = append(opts, WithQuery("limit", strconv.Itoa(limit)))
	}
	return opts
}
