package mq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/api/dto"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// HTTPConnection implements Connection against the development broker's
// HTTP API. Deliveries for read queues are pulled by one poller per queue.
type HTTPConnection struct {
	baseURL    string
	config     HTTPConnectionConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	sessionID string
	handler   EventHandler
	events    *eventQueue
	pollers   map[QueueID]*poller
	uris      map[QueueID]string
	keepAlive *poller

	totalPosted    atomic.Int64
	totalPushed    atomic.Int64
	totalConfirmed atomic.Int64
	totalAcks      atomic.Int64
}

type poller struct {
	id       QueueID
	uri      string
	cancel   context.CancelFunc
	doneChan chan struct{}
}

// HTTPConnectionConfig configuration for the HTTP connection
type HTTPConnectionConfig struct {
	BaseURL       string
	ClientID      string
	Timeout       time.Duration
	PrefetchCount int
	PollInterval  time.Duration
	Compression   domain.CompressionAlgorithm
	HighWatermark int
	LowWatermark  int

	// KeepAliveInterval is how often the session is refreshed so the
	// broker does not expire an idle producer.
	KeepAliveInterval time.Duration
}

// NewHTTPConnection creates a new HTTP-based broker connection
func NewHTTPConnection(config HTTPConnectionConfig, logger *slog.Logger) *HTTPConnection {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PrefetchCount <= 0 {
		config.PrefetchCount = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = 30 * time.Second
	}

	return &HTTPConnection{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		config:  config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger.With("component", "http_connection"),
		pollers: make(map[QueueID]*poller),
		uris:    make(map[QueueID]string),
	}
}

// Connect creates a broker session
func (c *HTTPConnection) Connect(ctx context.Context, handler EventHandler) Status {
	c.mu.Lock()
	if c.sessionID != "" {
		c.mu.Unlock()
		return StatusOf(domain.ResultNotSupported, "already connected")
	}
	c.mu.Unlock()

	var resp dto.CreateSessionResponse
	status := c.do(ctx, http.MethodPost, "/api/v1/sessions", dto.CreateSessionRequest{ClientID: c.config.ClientID}, &resp)
	if !status.OK() {
		return status
	}

	events := newEventQueue(c.config.HighWatermark, c.config.LowWatermark, c.logger)
	keepAliveCtx, cancel := context.WithCancel(context.Background())
	keepAlive := &poller{uri: "session", cancel: cancel, doneChan: make(chan struct{})}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.handler = handler
	c.events = events
	c.keepAlive = keepAlive
	c.mu.Unlock()

	go c.heartbeat(keepAliveCtx, resp.SessionID, keepAlive)

	events.start(handler)
	events.pushSession(SessionEvent{Type: SessionEventConnected})

	c.logger.Info("Connected to broker",
		"base_url", c.baseURL,
		"session_id", resp.SessionID,
	)
	return Success
}

// Disconnect stops all pollers and deletes the broker session
func (c *HTTPConnection) Disconnect(ctx context.Context) {
	c.mu.Lock()
	sessionID := c.sessionID
	events := c.events
	pollers := make([]*poller, 0, len(c.pollers))
	for _, p := range c.pollers {
		pollers = append(pollers, p)
	}
	keepAlive := c.keepAlive
	c.pollers = make(map[QueueID]*poller)
	c.uris = make(map[QueueID]string)
	c.sessionID = ""
	c.keepAlive = nil
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	c.stopPoller(ctx, keepAlive)

	for _, p := range pollers {
		c.stopPoller(ctx, p)
	}

	if status := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil); !status.OK() {
		c.logger.Warn("Failed to delete broker session",
			"session_id", sessionID,
			"result", status.Code.String(),
			"description", status.Description,
		)
	}

	events.pushSession(SessionEvent{Type: SessionEventDisconnected})
	if err := events.stop(ctx); err != nil {
		c.logger.Warn("Timed out waiting for event delivery to finish", "error", err)
	}

	c.logger.Info("Disconnected from broker", "session_id", sessionID)
}

// OpenQueue opens a queue and starts polling it if it is opened for read
func (c *HTTPConnection) OpenQueue(ctx context.Context, uri string, flags QueueFlags, settings domain.QueueSettings) (QueueID, domain.QueueSettings, Status) {
	sessionID, ok := c.session()
	if !ok {
		return 0, settings, StatusOf(domain.ResultNotConnected, "not connected")
	}

	req := dto.OpenQueueRequest{
		SessionID: sessionID,
		QueueURI:  uri,
		Read:      flags.Has(FlagRead),
		Write:     flags.Has(FlagWrite),
		Settings:  dto.ToQueueSettingsDTO(settings),
	}
	var resp dto.OpenQueueResponse
	if status := c.do(ctx, http.MethodPost, "/api/v1/queues/open", req, &resp); !status.OK() {
		return 0, settings, status
	}

	id := QueueID(resp.QueueID)
	c.mu.Lock()
	c.uris[id] = uri
	if flags.Has(FlagRead) {
		pollCtx, cancel := context.WithCancel(context.Background())
		p := &poller{id: id, uri: uri, cancel: cancel, doneChan: make(chan struct{})}
		c.pollers[id] = p
		go c.poll(pollCtx, sessionID, p)
	}
	c.mu.Unlock()

	return id, dto.ToQueueSettings(resp.Settings), Success
}

// ConfigureQueue changes consumer settings of an open queue
func (c *HTTPConnection) ConfigureQueue(ctx context.Context, id QueueID, settings domain.QueueSettings) (domain.QueueSettings, Status) {
	sessionID, ok := c.session()
	if !ok {
		return settings, StatusOf(domain.ResultNotConnected, "not connected")
	}

	req := dto.ConfigureQueueRequest{
		SessionID: sessionID,
		QueueID:   uint64(id),
		Settings:  dto.ToQueueSettingsDTO(settings),
	}
	var resp dto.ConfigureQueueResponse
	if status := c.do(ctx, http.MethodPost, "/api/v1/queues/configure", req, &resp); !status.OK() {
		return settings, status
	}
	return dto.ToQueueSettings(resp.Settings), Success
}

// CloseQueue stops the queue's poller and closes it on the broker
func (c *HTTPConnection) CloseQueue(ctx context.Context, id QueueID) Status {
	sessionID, ok := c.session()
	if !ok {
		return StatusOf(domain.ResultNotConnected, "not connected")
	}

	c.mu.Lock()
	p := c.pollers[id]
	delete(c.pollers, id)
	c.mu.Unlock()
	if p != nil {
		c.stopPoller(ctx, p)
	}

	req := dto.CloseQueueRequest{SessionID: sessionID, QueueID: uint64(id)}
	status := c.do(ctx, http.MethodPost, "/api/v1/queues/close", req, nil)
	if status.OK() {
		c.mu.Lock()
		delete(c.uris, id)
		c.mu.Unlock()
	}
	return status
}

// Post sends a message; the broker's ack is delivered as an ACK event
func (c *HTTPConnection) Post(ctx context.Context, msg *OutboundMessage) Status {
	sessionID, ok := c.session()
	if !ok {
		return StatusOf(domain.ResultNotConnected, "not connected")
	}

	algo := msg.Compression
	if algo == domain.CompressionNone {
		algo = c.config.Compression
	}
	payload, applied, err := CompressPayload(algo, msg.Payload)
	if err != nil {
		return StatusOf(domain.ResultInvalidArgument, err.Error())
	}

	req := dto.PostRequest{
		SessionID:  sessionID,
		QueueID:    uint64(msg.QueueID),
		GUID:       msg.GUID.String(),
		Payload:    payload,
		Properties: dto.ToPropertyDTOs(msg.Properties),
	}
	if applied != domain.CompressionNone {
		req.Compression = strings.ToLower(applied.String())
	}

	var resp dto.PostResponse
	if status := c.do(ctx, http.MethodPost, "/api/v1/queues/post", req, &resp); !status.OK() {
		return status
	}
	c.totalPosted.Add(1)

	if msg.WantAck || resp.AckStatus != int(domain.AckSuccess) {
		c.totalAcks.Add(1)
		c.pushMessage(MessageEvent{
			Type: MessageEventAck,
			Acks: []AckMessage{{QueueURI: msg.QueueURI, GUID: msg.GUID, Status: resp.AckStatus}},
		})
	}
	return Success
}

// Confirm confirms a delivered message
func (c *HTTPConnection) Confirm(ctx context.Context, id QueueID, guid domain.MessageGUID) Status {
	sessionID, ok := c.session()
	if !ok {
		return StatusOf(domain.ResultNotConnected, "not connected")
	}

	req := dto.ConfirmRequest{SessionID: sessionID, QueueID: uint64(id), GUID: guid.String()}
	status := c.do(ctx, http.MethodPost, "/api/v1/queues/confirm", req, nil)
	if status.OK() {
		c.totalConfirmed.Add(1)
	}
	return status
}

// Stats returns connection statistics
func (c *HTTPConnection) Stats() ConnectionStats {
	c.mu.RLock()
	open := len(c.uris)
	c.mu.RUnlock()

	return ConnectionStats{
		TotalPosted:    c.totalPosted.Load(),
		TotalPushed:    c.totalPushed.Load(),
		TotalConfirmed: c.totalConfirmed.Load(),
		TotalAcks:      c.totalAcks.Load(),
		OpenQueues:     open,
	}
}

func (c *HTTPConnection) session() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.sessionID != ""
}

func (c *HTTPConnection) pushMessage(ev MessageEvent) {
	c.mu.RLock()
	events := c.events
	c.mu.RUnlock()
	if events != nil {
		events.pushMessage(ev)
	}
}

func (c *HTTPConnection) pushSession(ev SessionEvent) {
	c.mu.RLock()
	events := c.events
	c.mu.RUnlock()
	if events != nil {
		events.pushSession(ev)
	}
}

func (c *HTTPConnection) stopPoller(ctx context.Context, p *poller) {
	p.cancel()
	select {
	case <-p.doneChan:
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for poller to stop", "queue_uri", p.uri)
	}
}

// heartbeat keeps the broker session alive while the connection is up
func (c *HTTPConnection) heartbeat(ctx context.Context, sessionID string, p *poller) {
	defer close(p.doneChan)

	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/heartbeat"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := c.do(ctx, http.MethodPut, path, nil, nil)
			if status.OK() || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("Session heartbeat failed",
				"session_id", sessionID,
				"result", status.Code.String(),
				"description", status.Description,
			)
			if status.Code == domain.ResultNotConnected {
				c.pushSession(SessionEvent{Type: SessionEventConnectionLost})
				return
			}
		}
	}
}

// poll fetches batches of deliveries for one read queue
func (c *HTTPConnection) poll(ctx context.Context, sessionID string, p *poller) {
	defer close(p.doneChan)

	c.logger.Info("Starting batch polling",
		"queue_uri", p.uri,
		"prefetch_count", c.config.PrefetchCount,
	)

	path := fmt.Sprintf("/api/v1/queues/fetch?session_id=%s&queue_id=%d&max=%d",
		url.QueryEscape(sessionID), p.id, c.config.PrefetchCount)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var resp dto.FetchResponse
		if status := c.do(ctx, http.MethodGet, path, nil, &resp); !status.OK() {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch messages",
				"queue_uri", p.uri,
				"result", status.Code.String(),
				"description", status.Description,
			)
			c.sleep(ctx, c.config.PollInterval)
			continue
		}

		if resp.Count == 0 {
			c.sleep(ctx, c.config.PollInterval)
			continue
		}

		pushes := make([]PushMessage, 0, len(resp.Messages))
		for _, m := range resp.Messages {
			push, err := c.toPush(p, m)
			if err != nil {
				c.logger.Error("Dropping undecodable message",
					"queue_uri", p.uri,
					"guid", m.GUID,
					"error", err,
				)
				continue
			}
			pushes = append(pushes, push)
		}
		if len(pushes) == 0 {
			continue
		}

		c.totalPushed.Add(int64(len(pushes)))
		c.pushMessage(MessageEvent{Type: MessageEventPush, Pushes: pushes})

		c.logger.Debug("Batch fetched",
			"queue_uri", p.uri,
			"count", len(pushes),
		)
	}
}

func (c *HTTPConnection) toPush(p *poller, m dto.PushMessageDTO) (PushMessage, error) {
	guid, err := domain.ParseGUIDHex(m.GUID)
	if err != nil {
		return PushMessage{}, err
	}
	algo, err := domain.ParseCompression(m.Compression)
	if err != nil {
		return PushMessage{}, err
	}
	payload, err := DecompressPayload(algo, m.Payload)
	if err != nil {
		return PushMessage{}, err
	}
	return PushMessage{
		QueueID:    p.id,
		QueueURI:   p.uri,
		GUID:       guid,
		Payload:    payload,
		Properties: dto.ToRawProperties(m.Properties),
	}, nil
}

func (c *HTTPConnection) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// do performs a JSON request and maps transport and HTTP failures onto a
// broker Status.
func (c *HTTPConnection) do(ctx context.Context, method, path string, in, out any) Status {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return StatusOf(domain.ResultInvalidArgument, fmt.Sprintf("failed to marshal request: %v", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return StatusOf(domain.ResultInvalidArgument, fmt.Sprintf("failed to create request: %v", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return StatusOf(domain.ResultTimeout, err.Error())
		}
		return StatusOf(domain.ResultNotConnected, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp dto.ErrorResponse
		bodyBytes, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(bodyBytes, &errResp); jsonErr != nil || errResp.ResultCode == 0 {
			return StatusOf(domain.ResultUnknown, fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes)))
		}
		return StatusOf(domain.ResultCode(errResp.ResultCode), errResp.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return StatusOf(domain.ResultUnknown, fmt.Sprintf("failed to decode response: %v", err))
		}
	}
	return Success
}
