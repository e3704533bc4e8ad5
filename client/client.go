package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	websocket "github.com/gorilla/websocket"

	api "github.com/openembed/frdbg/api"
)

// Interface represents a client connection to the debugging server.
type Interface interface {
	// Open establishes a connection to the debugger.
	Open() error
	// Close closes the connection to the debugger.
	Close() error
	// NextEvent blocks until it can return the next available debugger event.
	NextEvent() (*api.Event, error)
	// Tasks requests a fresh FreeRTOS task table.
	Tasks() error
	// TaskBreak adds a breakpoint at location scoped to taskName.
	TaskBreak(taskName, location string) error
	// AddBreakPoint adds an unconditional breakpoint at location.
	AddBreakPoint(location string) error
	// ClearBreakPoints clears all existing breakpoints.
	ClearBreakPoints() error
	// Continue resumes target execution.
	Continue() error
	// Halt breaks into a running target.
	Halt() error
	// Detach detaches the debugger from the target.
	Detach() error
}

var _ = Interface(&WebsocketClient{})

// WebsocketClient communicates with the debugger via WebSockets.
// Create a WebsocketClient using NewWebsocketClient.
type WebsocketClient struct {
	addr string
	conn *websocket.Conn
}

func NewWebsocketClient(addr string) *WebsocketClient {
	return &WebsocketClient{addr: addr}
}

func (c *WebsocketClient) writeMessage(obj interface{}) error {
	json, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("error marshalling obj: %s", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, json); err != nil {
		return fmt.Errorf("error writing obj: %s", err)
	}
	return nil
}

func (c *WebsocketClient) Open() error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 3 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	conn, resp, err := dialer.Dial(c.addr, http.Header{})
	if err != nil {
		return fmt.Errorf("dial error: %s\nresponse:%+v", err, resp)
	}
	c.conn = conn
	return nil
}

func (c *WebsocketClient) Close() error {
	return c.conn.Close()
}

func (c *WebsocketClient) NextEvent() (*api.Event, error) {
	messageType, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("invalid message type %d", messageType)
	}

	var event *api.Event
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, err
	}

	return event, nil
}

func (c *WebsocketClient) Tasks() error {
	return c.writeMessage(&api.Command{
		Name:  api.Tasks,
		Tasks: &api.TasksCommand{},
	})
}

func (c *WebsocketClient) TaskBreak(taskName, location string) error {
	return c.writeMessage(&api.Command{
		Name: api.TaskBreak,
		TaskBreak: &api.TaskBreakCommand{
			TaskName: taskName,
			Location: location,
		},
	})
}

func (c *WebsocketClient) AddBreakPoint(location string) error {
	return c.writeMessage(&api.Command{
		Name: api.AddBreakPoint,
		AddBreakPoint: &api.AddBreakPointCommand{
			Location: location,
		},
	})
}

func (c *WebsocketClient) ClearBreakPoints() error {
	return c.writeMessage(&api.Command{
		Name: api.ClearBreakPoints,
	})
}

func (c *WebsocketClient) Continue() error {
	return c.writeMessage(&api.Command{
		Name: api.Continue,
	})
}

func (c *WebsocketClient) Halt() error {
	return c.writeMessage(&api.Command{
		Name: api.Halt,
	})
}

func (c *WebsocketClient) Detach() error {
	return c.writeMessage(&api.Command{
		Name: api.Detach,
	})
}
