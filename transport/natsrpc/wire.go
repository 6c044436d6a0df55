package natsrpc

import (
	"github.com/goccy/go-json"
	"github.com/herald-mq/herald"
)

// Request/reply subjects, one per broker operation plus the connection
// lifecycle pair.
const (
	SubjectConnect     = "herald.rpc.connect"
	SubjectDisconnect  = "herald.rpc.disconnect"
	SubjectCreateTopic = "herald.rpc.create_topic"
	SubjectLogin       = "herald.rpc.login"
	SubjectListTopics  = "herald.rpc.list_topics"
	SubjectPublish     = "herald.rpc.publish"
	SubjectSubscribe   = "herald.rpc.subscribe_to"
	SubjectUnsubscribe = "herald.rpc.unsubscribe_to"

	notifyPrefix = "herald.notify."
)

// NotifySubject is the subject the server publishes notification
// batches to for one connection handle.
func NotifySubject(conn herald.ConnID) string {
	return notifyPrefix + string(conn)
}

type connectReply struct {
	Conn herald.ConnID `json:"conn"`
}

type disconnectRequest struct {
	Conn herald.ConnID `json:"conn"`
}

type createTopicRequest struct {
	Caller herald.UserID `json:"caller"`
	Name   herald.Topic  `json:"name"`
}

type createTopicReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type loginRequest struct {
	User herald.UserID `json:"user"`
	Conn herald.ConnID `json:"conn"`
}

type publishRequest struct {
	Author herald.UserID `json:"author"`
	Topic  herald.Topic  `json:"topic"`
	Data   string        `json:"data"`
}

type subscriptionRequest struct {
	User  herald.UserID `json:"user"`
	Topic herald.Topic  `json:"topic"`
}

type boolReply struct {
	OK bool `json:"ok"`
}

type listTopicsReply struct {
	Topics []herald.Topic `json:"topics"`
}

type notifyBatch struct {
	Batch []herald.Content `json:"batch"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
