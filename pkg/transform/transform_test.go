package transform

import (
	"testing"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shopifyRule = types.DynamicKeyRule{
	Within:             "customer.integrations",
	DiscriminatorField: "__integration_type__",
	DiscriminatorValue: "shopify",
	CanonicalKey:       "shopify",
}

var bodyPrune = types.PruneRule{
	Fields: []string{"body_html", "body_text", "stripped_text", "stripped_html"},
	Nested: []string{"messages"},
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestDynamicKeyNormalisation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, out types.Record)
		wantErr bool
	}{
		{
			name:  "single match is moved to canonical key",
			input: `{"customer":{"integrations":{"8812":{"__integration_type__":"shopify","orders":[]},"77":{"__integration_type__":"http"}}}}`,
			check: func(t *testing.T, out types.Record) {
				integrations := out["customer"].(map[string]any)["integrations"].(map[string]any)
				require.Contains(t, integrations, "shopify")
				assert.NotContains(t, integrations, "8812")
				assert.Contains(t, integrations, "77")
				assert.Equal(t, "8812", integrations["shopify"].(map[string]any)["id"])
			},
		},
		{
			name:    "two matches are ambiguous",
			input:   `{"customer":{"integrations":{"1":{"__integration_type__":"shopify"},"2":{"__integration_type__":"shopify"}}}}`,
			wantErr: true,
		},
		{
			name:  "no match leaves mapping untouched",
			input: `{"customer":{"integrations":{"1":{"__integration_type__":"http"}}}}`,
			check: func(t *testing.T, out types.Record) {
				integrations := out["customer"].(map[string]any)["integrations"].(map[string]any)
				assert.Contains(t, integrations, "1")
				assert.NotContains(t, integrations, "shopify")
			},
		},
		{
			name:  "missing mapping is ignored",
			input: `{"customer":{"email":"a@b.c"}}`,
			check: func(t *testing.T, out types.Record) {
				assert.Equal(t, "a@b.c", out["customer"].(map[string]any)["email"])
			},
		},
		{
			name:    "canonical key taken by another entry",
			input:   `{"customer":{"integrations":{"shopify":{"__integration_type__":"http"},"9":{"__integration_type__":"shopify"}}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply("ticket_details", types.TransformRules{DynamicKeys: []types.DynamicKeyRule{shopifyRule}}, decode(t, tt.input))
			if tt.wantErr {
				var transformErr *types.TransformError
				require.ErrorAs(t, err, &transformErr)
				assert.Equal(t, "customer.integrations", transformErr.Path)
				return
			}
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestPruneTopLevelAndNested(t *testing.T) {
	input := decode(t, `{
		"id": 1,
		"body_html": "<p>x</p>", "body_text": "x", "stripped_text": "x", "stripped_html": "x",
		"messages": [
			{"id": 10, "body_html": "a", "body_text": "a", "stripped_text": "a", "stripped_html": "a"},
			{"id": 11, "body_html": "b", "body_text": "b", "stripped_text": "b", "stripped_html": "b"}
		]
	}`)

	out, err := Apply("ticket_details", types.TransformRules{Prune: []types.PruneRule{bodyPrune}}, input)
	require.NoError(t, err)

	for _, field := range bodyPrune.Fields {
		assert.NotContains(t, out, field)
		for _, message := range out["messages"].([]any) {
			assert.NotContains(t, message.(map[string]any), field)
		}
	}
	assert.Len(t, out["messages"], 2)

	// the input is left alone
	assert.Contains(t, input, "body_html")
	assert.Contains(t, input["messages"].([]any)[0].(map[string]any), "body_html")
}

func TestPruneDotPath(t *testing.T) {
	out, err := Apply("s", types.TransformRules{Prune: []types.PruneRule{{Fields: []string{"meta.secret", "missing.deep"}}}},
		map[string]any{"meta": map[string]any{"secret": 1, "kept": 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kept": 2}, out["meta"])
}

func TestConformProjectsAndCoerces(t *testing.T) {
	schema := []types.Field{
		types.NewField("id", types.Integer),
		types.NewField("score", types.Number),
		types.NewField("spam", types.Boolean),
		types.NewField("subject", types.String),
		types.NewField("updated_datetime", types.DateTime),
		types.NewObject("customer", types.NewField("id", types.Integer)),
		types.NewArray("tags", types.ObjectItems(types.NewField("name", types.String))),
		types.NewObject("meta"),
	}
	input := decode(t, `{
		"id": 7, "score": "4.5", "spam": "false", "subject": 12,
		"updated_datetime": "2024-01-01T10:00:00+02:00",
		"customer": {"id": "99", "email": "dropped@x.y"},
		"tags": [{"name": "vip", "decoration": {}}],
		"meta": {"anything": true},
		"undeclared": "dropped"
	}`)
	input["id"] = json.Number("7")

	out, err := Conform("tickets", schema, input)
	require.NoError(t, err)

	assert.Equal(t, int64(7), out["id"])
	assert.Equal(t, 4.5, out["score"])
	assert.Equal(t, false, out["spam"])
	assert.Equal(t, "12", out["subject"])
	assert.Equal(t, "2024-01-01T08:00:00Z", out["updated_datetime"])
	assert.Equal(t, map[string]any{"id": int64(99)}, out["customer"])
	assert.Equal(t, []any{map[string]any{"name": "vip"}}, out["tags"])
	assert.Equal(t, map[string]any{"anything": true}, out["meta"])
	assert.NotContains(t, out, "undeclared")
}

func TestConformKeysAreSubsetOfSchema(t *testing.T) {
	schema := []types.Field{types.NewField("id", types.Integer), types.NewField("name", types.String)}
	out, err := Conform("customers", schema, map[string]any{"id": 1, "name": "a", "extra": 1, "other": nil})
	require.NoError(t, err)
	for key := range out {
		assert.Contains(t, types.FieldNames(schema), key)
	}
}

func TestConformRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		field types.Field
		value any
		path  string
	}{
		{"fractional integer", types.NewField("id", types.Integer), json.Number("1.5"), "id"},
		{"text integer", types.NewField("id", types.Integer), "abc", "id"},
		{"bad timestamp", types.NewField("at", types.DateTime), "yesterday", "at"},
		{"object expected", types.NewObject("customer", types.NewField("id", types.Integer)), "x", "customer"},
		{"bad element", types.NewArray("ids", types.ScalarItems(types.Integer)), []any{json.Number("1"), "x"}, "ids[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Conform("s", []types.Field{tt.field}, map[string]any{tt.field.Name: tt.value})
			var transformErr *types.TransformError
			require.ErrorAs(t, err, &transformErr)
			assert.Equal(t, tt.path, transformErr.Path)
		})
	}
}

func TestProcess(t *testing.T) {
	stream := &types.StreamDefinition{
		Name:   "ticket_details",
		Schema: []types.Field{types.NewField("id", types.Integer), types.NewArray("messages", types.ObjectItems(types.NewField("id", types.Integer), types.NewField("body_html", types.String)))},
		Transforms: types.TransformRules{
			Prune: []types.PruneRule{bodyPrune},
		},
	}
	out, err := Process(stream, decode(t, `{"id":1,"body_html":"x","messages":[{"id":2,"body_html":"y"}]}`))
	require.NoError(t, err)
	assert.Equal(t, types.Record{"id": int64(1), "messages": []any{map[string]any{"id": int64(2)}}}, out)
}
