package ipc

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectField(t *testing.T) {
	doc := Document{
		"name":    "scale",
		"count":   float64(3),
		"ratio":   0.5,
		"enabled": true,
		"list":    []interface{}{"a"},
		"nested":  map[string]interface{}{"x": 1},
		"nothing": nil,
	}

	tests := []struct {
		field   string
		kind    Kind
		wantErr bool
	}{
		{"name", KindString, false},
		{"count", KindInteger, false},
		{"count", KindNumber, false},
		{"ratio", KindNumber, false},
		{"ratio", KindInteger, true},
		{"enabled", KindBool, false},
		{"list", KindArray, false},
		{"nested", KindObject, false},
		{"nothing", KindNull, false},
		{"name", KindInteger, true},
		{"missing", KindString, true},
	}

	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.kind.String(), func(t *testing.T) {
			err := ExpectField(doc, tt.field, tt.kind)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
				assert.Equal(t, tt.field == "missing", verr.Missing)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptionalField(t *testing.T) {
	assert.NoError(t, OptionalField(Document{}, "optional", KindInteger))
	assert.NoError(t, OptionalField(Document{"optional": 4}, "optional", KindInteger))
	assert.Error(t, OptionalField(Document{"optional": "4"}, "optional", KindInteger))
}

func TestFrameRoundTrip(t *testing.T) {
	doc := Document{
		"method": "basic-example/client-interest",
		"data": Document{
			"type":     "subscribe",
			"optional": 7,
			"tags":     []string{"a", "b"},
			"null":     nil,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, doc))

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)

	method, data, err := ParseRequest(got)
	require.NoError(t, err)
	assert.Equal(t, "basic-example/client-interest", method)
	assert.Equal(t, "subscribe", data["type"])
	n, ok := data.Int("optional")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []interface{}{"a", "b"}, data["tags"])
	assert.Contains(t, data, "null")
	assert.Nil(t, data["null"])
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(2048)))
	buf.Write(make([]byte, 2048))

	_, err := ReadFrame(&buf, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message too large")
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(16)))
	buf.Write([]byte{1, 2})

	_, err := ReadFrame(&buf, 0)
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	_, _, err := ParseRequest(Document{"data": Document{}})
	assert.Error(t, err)

	method, data, err := ParseRequest(Document{"method": "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "a/b", method)
	assert.Empty(t, data)

	_, _, err = ParseRequest(Document{"method": "a/b", "data": "x"})
	assert.Error(t, err)
}

func TestJSONHelpers(t *testing.T) {
	doc, err := ParseJSON([]byte(`{"type":"oneshot","optional":2,"nested":{"x":[1,true]}}`))
	require.NoError(t, err)
	assert.Equal(t, "oneshot", doc["type"])
	n, ok := doc.Int("optional")
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)

	out, err := FormatJSON(OK())
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"result"`))

	_, err = ParseJSON([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestResponseError(t *testing.T) {
	assert.NoError(t, ResponseError(OK()))
	err := ResponseError(Error("nope"))
	require.Error(t, err)
	assert.Equal(t, "server error: nope", err.Error())
}

func TestDocumentClone(t *testing.T) {
	orig := Document{"nested": map[string]interface{}{"list": []interface{}{1}}}
	clone := orig.Clone()

	clone["nested"].(map[string]interface{})["list"].([]interface{})[0] = 2
	assert.Equal(t, 1, orig["nested"].(map[string]interface{})["list"].([]interface{})[0])
}

func TestDecode(t *testing.T) {
	var out struct {
		OutputID int    `mapstructure:"output_id"`
		Name     string `mapstructure:"name"`
	}
	require.NoError(t, Decode(Document{"output_id": float64(3), "name": "x"}, &out))
	assert.Equal(t, 3, out.OutputID)
	assert.Equal(t, "x", out.Name)
}
