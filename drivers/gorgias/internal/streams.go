package driver

import (
	"github.com/datazip-inc/gorgias-tap/types"
)

const namespace = "gorgias"

var bodyFields = []string{"body_text", "body_html", "stripped_text", "stripped_html"}

func customerRef(name string) types.Field {
	return types.NewObject(name,
		types.NewField("id", types.Integer),
		types.NewField("email", types.String),
		types.NewField("name", types.String),
		types.NewField("firstname", types.String),
		types.NewField("lastname", types.String),
	)
}

// list endpoints answer {"data": [...], "meta": {"next_cursor": ...}}
func cursorStream(name, path string) *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:          name,
		Namespace:     namespace,
		PrimaryKeys:   []string{"id"},
		Path:          path,
		Pagination:    types.PaginationCursor,
		RecordsPath:   "data",
		NextTokenPath: "meta.next_cursor",
	}
}

// Streams declares every Gorgias resource the tap syncs. Each call returns fresh
// definitions.
func Streams() []*types.StreamDefinition {
	return []*types.StreamDefinition{
		tickets(),
		ticketDetails(),
		messages(),
		satisfactionSurveys(),
		customers(),
		integrations(),
	}
}

func tickets() *types.StreamDefinition {
	stream := cursorStream("tickets", "/api/tickets")
	stream.ReplicationKey = "updated_datetime"
	stream.Params = map[string]string{"order_by": "updated_datetime:asc"}
	stream.ChildContext = map[string]string{"ticket_id": "id"}
	stream.Schema = []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("uri", types.String),
		types.NewField("external_id", types.String),
		types.NewField("language", types.String),
		types.NewField("status", types.String),
		types.NewField("priority", types.String),
		types.NewField("channel", types.String),
		types.NewField("via", types.String),
		types.NewField("from_agent", types.Boolean),
		customerRef("requester"),
		customerRef("customer"),
		customerRef("assignee_user"),
		types.NewObject("assignee_team",
			types.NewField("id", types.Integer),
			types.NewField("name", types.String),
			types.NewObject("decoration",
				types.NewObject("emoji",
					types.NewField("id", types.String),
					types.NewField("name", types.String),
					types.NewField("skin", types.Integer),
					types.NewField("colons", types.String),
					types.NewField("native", types.String),
					types.NewField("unified", types.String),
				),
			),
		),
		types.NewField("subject", types.String),
		types.NewField("excerpt", types.String),
		types.NewArray("integrations", types.ObjectItems(
			types.NewField("name", types.String),
			types.NewField("address", types.String),
			types.NewField("type", types.String),
		)),
		types.NewArray("tags", types.ObjectItems(
			types.NewField("id", types.Integer),
			types.NewField("name", types.String),
			types.NewField("uri", types.String),
		)),
		types.NewField("messages_count", types.Integer),
		types.NewField("is_unread", types.Boolean),
		types.NewField("created_datetime", types.DateTime),
		types.NewField("opened_datetime", types.DateTime),
		types.NewField("last_received_message_datetime", types.DateTime),
		types.NewField("last_message_datetime", types.DateTime),
		types.NewField("updated_datetime", types.DateTime),
		types.NewField("closed_datetime", types.DateTime),
		types.NewField("snooze_datetime", types.DateTime),
	}
	return stream
}

// ticketDetails fetches the single ticket view, which carries spam and
// integration data the list view lacks.
func ticketDetails() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:        "ticket_details",
		Namespace:   namespace,
		PrimaryKeys: []string{"id"},
		Parent:      "tickets",
		Path:        "/api/tickets/{ticket_id}",
		Pagination:  types.PaginationNone,
		Transforms: types.TransformRules{
			// integrations are keyed by integration id; the shopify one gets a fixed key
			DynamicKeys: []types.DynamicKeyRule{{
				Within:             "customer.integrations",
				DiscriminatorField: "__integration_type__",
				DiscriminatorValue: "shopify",
				CanonicalKey:       "shopify",
				OriginalKeyField:   "id",
			}},
			// bodies are served by the messages stream
			Prune: []types.PruneRule{{Fields: bodyFields, Nested: []string{"messages"}}},
		},
		Schema: []types.Field{
			types.NewField("id", types.Integer),
			types.NewObject("assignee_user",
				types.NewField("id", types.Integer),
				types.NewField("email", types.String),
				types.NewField("name", types.String),
				types.NewField("first_name", types.String),
				types.NewField("last_name", types.String),
			),
			types.NewField("channel", types.String),
			types.NewField("closed_datetime", types.DateTime),
			types.NewField("created_datetime", types.DateTime),
			types.NewObject("customer",
				types.NewField("id", types.Integer),
				types.NewField("name", types.String),
				types.NewField("email", types.String),
				types.NewObject("integrations",
					types.NewObject("shopify",
						types.NewField("id", types.Integer),
						types.NewArray("orders", types.ObjectItems(
							types.NewField("id", types.Integer),
							types.NewField("name", types.String),
							types.NewArray("line_items", types.ObjectItems(types.NewField("id", types.Integer))),
						)),
					),
				),
			),
			types.NewArray("events", types.ObjectItems(
				types.NewField("id", types.Integer),
				types.NewField("context", types.String),
				types.NewField("created_datetime", types.DateTime),
				types.NewField("object_id", types.Integer),
				types.NewField("date", types.DateTime),
				types.NewField("object_type", types.String),
				types.NewField("type", types.String),
				types.NewField("user_id", types.Integer),
				types.NewField("uri", types.String),
			)),
			types.NewField("external_id", types.String),
			types.NewField("from_agent", types.Boolean),
			types.NewField("is_unread", types.Boolean),
			types.NewField("language", types.String),
			types.NewField("last_message_datetime", types.DateTime),
			types.NewField("last_received_message_datetime", types.DateTime),
			types.NewField("opened_datetime", types.DateTime),
			types.NewField("priority", types.String),
			types.NewField("snooze_datetime", types.DateTime),
			types.NewField("spam", types.Boolean),
			types.NewField("status", types.String),
			types.NewField("subject", types.String),
			types.NewArray("tags", types.ObjectItems(
				types.NewField("id", types.Integer),
				types.NewField("name", types.String),
				types.NewObject("decoration", types.NewField("color", types.String)),
			)),
			types.NewField("trashed_datetime", types.DateTime),
			types.NewField("updated_datetime", types.DateTime),
			types.NewField("via", types.String),
			types.NewField("uri", types.String),
		},
	}
}

// messages only covers tickets present in the ticket view; new messages bump
// the ticket's updated_datetime so they are picked up on the next run.
func messages() *types.StreamDefinition {
	stream := cursorStream("messages", "/api/tickets/{ticket_id}/messages")
	stream.Parent = "tickets"
	stream.Schema = []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("uri", types.String),
		types.NewField("message_id", types.String),
		types.NewField("ticket_id", types.Integer),
		types.NewField("external_id", types.String),
		types.NewField("public", types.Boolean),
		types.NewField("channel", types.String),
		types.NewField("via", types.String),
		types.NewObject("source",
			types.NewField("type", types.String),
			types.NewArray("to", types.ObjectItems(
				types.NewField("name", types.String),
				types.NewField("address", types.String),
			)),
			types.NewObject("from",
				types.NewField("name", types.String),
				types.NewField("address", types.String),
			),
		),
		customerRef("sender"),
		types.NewField("integration_id", types.Integer),
		types.NewField("rule_id", types.Integer),
		types.NewField("from_agent", types.Boolean),
		customerRef("receiver"),
		types.NewField("subject", types.String),
		types.NewField("body_text", types.String),
		types.NewField("body_html", types.String),
		types.NewField("stripped_text", types.String),
		types.NewField("stripped_html", types.String),
		types.NewField("stripped_signature", types.String),
		types.NewField("created_datetime", types.DateTime),
		types.NewField("sent_datetime", types.DateTime),
		types.NewField("failed_datetime", types.DateTime),
		types.NewField("deleted_datetime", types.DateTime),
		types.NewField("opened_datetime", types.DateTime),
	}
	return stream
}

// satisfactionSurveys can neither be filtered nor ordered, so every run reads
// the full list.
func satisfactionSurveys() *types.StreamDefinition {
	stream := cursorStream("satisfaction_surveys", "/api/satisfaction-surveys")
	stream.FullRefreshOnly = true
	stream.Schema = []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("body_text", types.String),
		types.NewField("created_datetime", types.DateTime),
		types.NewField("customer_id", types.Integer),
		types.NewField("score", types.Integer),
		types.NewField("scored_datetime", types.DateTime),
		types.NewField("sent_datetime", types.DateTime),
		types.NewField("should_send_datetime", types.DateTime),
		types.NewField("ticket_id", types.Integer),
		types.NewField("uri", types.String),
	}
	return stream
}

// customers can only be ordered by creation, so updates need a full refresh.
func customers() *types.StreamDefinition {
	stream := cursorStream("customers", "/api/customers")
	stream.FullRefreshOnly = true
	stream.Schema = []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("created_datetime", types.DateTime),
		types.NewField("email", types.String),
		types.NewField("external_id", types.String),
		types.NewField("firstname", types.String),
		types.NewField("language", types.String),
		types.NewField("lastname", types.String),
		types.NewField("name", types.String),
		types.NewField("timezone", types.String),
		types.NewField("updated_datetime", types.DateTime),
		types.NewField("note", types.String),
		types.NewField("active", types.Boolean),
		types.NewObject("meta", types.NewField("name_set_via", types.String)),
		types.NewField("error", types.String),
	}
	return stream
}

func integrations() *types.StreamDefinition {
	stream := cursorStream("integrations", "/api/integrations")
	stream.Pagination = types.PaginationNextURL
	stream.NextTokenPath = "meta.next_items"
	stream.Schema = []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("uri", types.String),
		types.NewObject("user", types.NewField("id", types.Integer)),
		types.NewField("type", types.String),
		types.NewField("name", types.String),
		types.NewField("description", types.String),
		types.NewObject("meta",
			types.NewField("shop_name", types.String),
			types.NewField("shop_display_name", types.String),
			types.NewField("shop_domain", types.String),
			types.NewField("shop_plan", types.String),
			types.NewField("shop_id", types.Integer),
			types.NewArray("shopify_integration_ids", types.ScalarItems(types.Integer)),
			types.NewField("shopify_integration_id", types.Integer),
			types.NewField("shop_integration_id", types.Integer),
		),
		types.NewField("created_datetime", types.DateTime),
		types.NewField("updated_datetime", types.DateTime),
		types.NewField("deactivated_datetime", types.DateTime),
		types.NewField("locked_datetime", types.DateTime),
		types.NewField("deleted_datetime", types.DateTime),
	}
	return stream
}
