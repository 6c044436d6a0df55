package natsrpc

import (
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/herald-mq/herald"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func TestNotifySubject(t *testing.T) {
	conn := herald.ConnID("0191b2c3-aaaa-7bbb-8ccc-ddddeeee0001")
	assert.Equal(t, "herald.notify.0191b2c3-aaaa-7bbb-8ccc-ddddeeee0001", NotifySubject(conn))
}

func TestPublishRequestWireFormat(t *testing.T) {
	data, err := encode(publishRequest{Author: "bob", Topic: "sports", Data: "goal!"})
	require.NoError(t, err)

	assert.Equal(t, "bob", gjson.GetBytes(data, "author").String())
	assert.Equal(t, "sports", gjson.GetBytes(data, "topic").String())
	assert.Equal(t, "goal!", gjson.GetBytes(data, "data").String())
}

func TestNotifyBatchRoundTrip(t *testing.T) {
	batch := []herald.Content{
		{Author: "bob", Topic: "sports", Data: "goal!", SentAt: strfmt.DateTime(time.Now().UTC())},
		{Author: "carol", Topic: "sports", Data: "own goal", SentAt: strfmt.DateTime(time.Now().UTC())},
	}
	data, err := encode(notifyBatch{Batch: batch})
	require.NoError(t, err)

	decoded, err := decode[notifyBatch](data)
	require.NoError(t, err)
	require.Len(t, decoded.Batch, 2)
	assert.Equal(t, herald.UserID("bob"), decoded.Batch[0].Author)
	assert.Equal(t, "own goal", decoded.Batch[1].Data)
}

func TestCreateTopicReplyOmitsEmptyError(t *testing.T) {
	data, err := encode(createTopicReply{OK: true})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(data, "error").Exists())

	data, err = encode(createTopicReply{OK: false, Error: herald.ErrTopicExists.Error()})
	require.NoError(t, err)
	assert.Equal(t, herald.ErrTopicExists.Error(), gjson.GetBytes(data, "error").String())
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	valid, err := encode(loginRequest{User: "alice", Conn: "conn-1"})
	require.NoError(t, err)

	// corrupt the user field into an object
	corrupted, err := sjson.SetBytes(valid, "user", map[string]any{"nested": true})
	require.NoError(t, err)

	_, err = decode[loginRequest](corrupted)
	assert.Error(t, err)

	_, err = decode[loginRequest]([]byte("{not json"))
	assert.Error(t, err)
}
