package proto

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestDecodeStreamIn(t *testing.T) {
	payload, err := Encode(&StreamIn{
		Object:           ObjectRef{Kind: 2, ID: 5},
		Dimension:        -3,
		Pos:              Vector3{1, 2, 3},
		StreamSyncedMeta: map[string]interface{}{"fuel": 0.5, "plate": map[string]interface{}{"text": "GO"}},
	})
	assert.Equal(t, nil, err)

	msg, err := Decode(MT_STREAM_IN, payload)
	assert.Equal(t, nil, err)
	in := msg.(*StreamIn)
	assert.Equal(t, ObjectRef{Kind: 2, ID: 5}, in.Object)
	assert.Equal(t, int32(-3), in.Dimension)
	assert.Equal(t, float32(2), in.Pos.Y)
	plate, ok := in.StreamSyncedMeta["plate"].(map[string]interface{})
	assert.T(t, ok, "nested meta decodes with string keys")
	assert.Equal(t, "GO", plate["text"])
}

func TestDecodeEmptyAndUnknown(t *testing.T) {
	msg, err := Decode(MT_HEARTBEAT_FROM_CLIENT, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, &Heartbeat{}, msg)

	_, err = Decode(MsgType(9999), []byte{1})
	assert.T(t, err != nil, "unknown type")

	_, err = Decode(MT_SYNC_POSITION, []byte{0xc1})
	assert.T(t, err != nil, "garbage payload")
}

func TestSharedPayloadTypes(t *testing.T) {
	a, _ := New(MT_CLIENT_EVENT)
	b, _ := New(MT_SERVER_EVENT)
	assert.Equal(t, a, b)
	c, _ := New(MT_STREAM_SYNCED_META_CHANGE)
	assert.Equal(t, &MetaChange{}, c)
}
