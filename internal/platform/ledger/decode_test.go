package ledger

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePayload(t *testing.T, raw string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestDecodePayload_ListingCreated(t *testing.T) {
	raw := `{
		"type": "Event",
		"value": {
			"id": "A.c1e4f4f4c4257510.Market.MomentListed",
			"fields": [
				{"name": "id", "value": {"type": "UInt64", "value": "208838502"}},
				{"name": "price", "value": {"type": "UFix64", "value": "14.00000000"}},
				{"name": "seller", "value": {"type": "Optional", "value": {"type": "Address", "value": "0xf3fcd2c1a78f5eee"}}},
				{"name": "momentType", "value": {"type": "Type", "value": {"staticType": "A.0b2a3299cc857e29.TopShot.NFT"}}}
			]
		}
	}`

	fields, err := DecodePayload(encodePayload(t, raw))
	require.NoError(t, err)

	assert.Equal(t, "208838502", fields["id"])
	assert.Equal(t, "14.00000000", fields["price"])
	assert.Equal(t, "0xf3fcd2c1a78f5eee", fields["seller"])
	assert.Equal(t, "A.0b2a3299cc857e29.TopShot.NFT", fields["momentType"])
}

func TestDecodePayload_NilOptionalOmitted(t *testing.T) {
	raw := `{
		"type": "Event",
		"value": {
			"id": "A.c1e4f4f4c4257510.Market.MomentPurchased",
			"fields": [
				{"name": "id", "value": {"type": "UInt64", "value": "7"}},
				{"name": "buyer", "value": {"type": "Optional", "value": null}}
			]
		}
	}`

	fields, err := DecodePayload(encodePayload(t, raw))
	require.NoError(t, err)

	assert.Equal(t, "7", fields["id"])
	_, present := fields["buyer"]
	assert.False(t, present, "nil optional should be omitted")
}

func TestDecodePayload_TypeIDObjectForm(t *testing.T) {
	raw := `{
		"type": "Event",
		"value": {
			"id": "A.c1e4f4f4c4257510.Market.MomentListed",
			"fields": [
				{"name": "momentType", "value": {"type": "Type", "value": {"staticType": {"kind": "Resource", "typeID": "A.0b2a3299cc857e29.TopShot.NFT"}}}}
			]
		}
	}`

	fields, err := DecodePayload(encodePayload(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "A.0b2a3299cc857e29.TopShot.NFT", fields["momentType"])
}

func TestDecodePayload_BoolAndNumberScalars(t *testing.T) {
	raw := `{
		"type": "Event",
		"value": {
			"id": "A.c1e4f4f4c4257510.Market.MomentListed",
			"fields": [
				{"name": "locked", "value": {"type": "Bool", "value": true}},
				{"name": "count", "value": {"type": "Int", "value": 42}}
			]
		}
	}`

	fields, err := DecodePayload(encodePayload(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "true", fields["locked"])
	assert.Equal(t, "42", fields["count"])
}

func TestDecodePayload_BadBase64(t *testing.T) {
	_, err := DecodePayload("%%%not-base64%%%")
	require.Error(t, err)
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	_, err := DecodePayload(encodePayload(t, `{"type": "Event", "value": `))
	require.Error(t, err)
}
