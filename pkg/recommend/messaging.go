package recommend

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// MessagingAPI covers smart campaigns and messaging channels.
type MessagingAPI struct {
	client   *Client
	endpoint string

	ChannelBatch *ChannelBatchAPI
	ChannelEmail *ChannelEmailAPI
}

func newMessagingAPI(c *Client) *MessagingAPI {
	return &MessagingAPI{
		client:       c,
		endpoint:     "messaging",
		ChannelBatch: &ChannelBatchAPI{client: c, endpoint: "messaging/channel/batch"},
		ChannelEmail: &ChannelEmailAPI{Resource: newResource(c, "messaging/channel/email", CapRead)},
	}
}

// SmartCampaign returns the smart campaigns of the account.
func (a *MessagingAPI) SmartCampaign(ctx context.Context, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodGet, joinPath(a.endpoint, "smart_campaign"), nil, opts)
}

// ChannelBatchAPI upserts messaging channels in bulk.
type ChannelBatchAPI struct {
	client   *Client
	endpoint string
}

func (a *ChannelBatchAPI) Email(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "email"), data, opts)
}

func (a *ChannelBatchAPI) PushToken(ctx context.Context, data any, opts ...CallOption) (*Response, error) {
	return a.client.call(ctx, http.MethodPost, joinPath(a.endpoint, "push_token"), data, opts)
}

// ChannelEmailAPI is the read-only email channel resource.
type ChannelEmailAPI struct {
	*Resource
}

// EmailSearch filters ChannelEmailAPI.Search. An empty SubscriptionStatuses
// matches channels regardless of their status.
type EmailSearch struct {
	FromDate             time.Time
	ToDate               time.Time
	Skip                 int
	SubscriptionStatuses []string
	Emails               []string
}

func (a *ChannelEmailAPI) Search(ctx context.Context, q EmailSearch, opts ...CallOption) (*Response, error) {
	statuses := q.SubscriptionStatuses
	if statuses == nil {
		statuses = []string{}
	}
	data := map[string]any{"subscription_statuses": statuses}
	if len(q.Emails) > 0 {
		data["emails"] = q.Emails
	}

	var query []CallOption
	if !q.FromDate.IsZero() {
		query = append(query, WithQuery("from_date", strconv.FormatInt(q.FromDate.Unix(), 10)))
	}
	if !q.ToDate.IsZero() {
		query = append(query, WithQuery("to_date", strconv.FormatInt(q.ToDate.Unix(), 10)))
	}
	query = append(query, pageOptions(q.Skip, 0)...)

	return a.send(ctx, http.MethodPost, a.path("search"), data, append(query, opts...))
}
