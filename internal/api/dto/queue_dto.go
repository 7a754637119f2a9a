package dto

// QueueSettingsDTO carries negotiated or requested consumer settings
type QueueSettingsDTO struct {
	MaxUnconfirmedMessages  int  `json:"max_unconfirmed_messages" example:"1000"`
	MaxUnconfirmedBytes     int  `json:"max_unconfirmed_bytes" example:"33554432"`
	ConsumerPriority        int  `json:"consumer_priority" example:"0"`
	SuspendsOnBadHostHealth bool `json:"suspends_on_bad_host_health" example:"false"`
}

// PropertyDTO is a single typed message property in wire form
type PropertyDTO struct {
	Name  string `json:"name" binding:"required"`
	Type  int    `json:"type" example:"6"`
	Value []byte `json:"value"`
}

// CreateSessionRequest opens a client session on the broker
type CreateSessionRequest struct {
	ClientID string `json:"client_id" example:"producer-1"`
}

// CreateSessionResponse returns the id of a new session
type CreateSessionResponse struct {
	SessionID string `json:"session_id" example:"6a1f0c0e-6f7a-4c1e-9d8e-0a7f3c2b1d4e"`
}

// OpenQueueRequest opens a queue within a session
type OpenQueueRequest struct {
	SessionID string           `json:"session_id" binding:"required"`
	QueueURI  string           `json:"queue_uri" binding:"required" example:"bmq://bmq.test.mem.priority/orders"`
	Read      bool             `json:"read"`
	Write     bool             `json:"write"`
	Settings  QueueSettingsDTO `json:"settings"`
}

// OpenQueueResponse returns the handle id and negotiated settings
type OpenQueueResponse struct {
	QueueID  uint64           `json:"queue_id"`
	Settings QueueSettingsDTO `json:"settings"`
}

// ConfigureQueueRequest changes consumer settings of an open queue
type ConfigureQueueRequest struct {
	SessionID string           `json:"session_id" binding:"required"`
	QueueID   uint64           `json:"queue_id" binding:"required"`
	Settings  QueueSettingsDTO `json:"settings"`
}

// ConfigureQueueResponse returns the negotiated settings
type ConfigureQueueResponse struct {
	Settings QueueSettingsDTO `json:"settings"`
}

// CloseQueueRequest closes an open queue
type CloseQueueRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	QueueID   uint64 `json:"queue_id" binding:"required"`
}

// PostRequest posts one message to an open queue
type PostRequest struct {
	SessionID   string        `json:"session_id" binding:"required"`
	QueueID     uint64        `json:"queue_id" binding:"required"`
	GUID        string        `json:"guid" binding:"required"`
	Payload     []byte        `json:"payload"`
	Properties  []PropertyDTO `json:"properties,omitempty"`
	Compression string        `json:"compression,omitempty" example:"zlib"`
}

// PostResponse carries the broker's ack for a posted message
type PostResponse struct {
	GUID              string `json:"guid"`
	AckStatus         int    `json:"ack_status"`
	StatusDescription string `json:"status_description,omitempty"`
}

// ConfirmRequest confirms a delivered message
type ConfirmRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	QueueID   uint64 `json:"queue_id" binding:"required"`
	GUID      string `json:"guid" binding:"required"`
}

// PushMessageDTO is a message delivered to a consumer
type PushMessageDTO struct {
	QueueURI    string        `json:"queue_uri"`
	GUID        string        `json:"guid"`
	Payload     []byte        `json:"payload"`
	Properties  []PropertyDTO `json:"properties,omitempty"`
	Compression string        `json:"compression,omitempty"`
}

// FetchResponse is a batch of delivered messages
type FetchResponse struct {
	Messages []PushMessageDTO `json:"messages"`
	Count    int              `json:"count"`
}

// StatusResponse is a generic acknowledgement of a request
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}
