package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	websocket "github.com/gorilla/websocket"

	"github.com/openembed/frdbg/api"
)

// WebsocketServer bridges the Debugger's command and event channels to one
// websocket client.
type WebsocketServer struct {
	Debugger   *Debugger
	ListenAddr string
	ListenPort int
	Shutdown   chan bool
}

func (s *WebsocketServer) URL() string {
	return fmt.Sprintf("ws://%s:%d/", s.ListenAddr, s.ListenPort)
}

func (s *WebsocketServer) Run() {
	http.HandleFunc("/", s.handleSocket)
	err := http.ListenAndServe(fmt.Sprintf("%s:%d", s.ListenAddr, s.ListenPort), nil)
	if err != nil {
		glog.Errorf("error starting server: %s", err)
	}
}

func (s *WebsocketServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Error(err)
		return
	}

	go s.readCommands(conn)
	go s.writeEvents(conn)
}

func (s *WebsocketServer) readCommands(conn *websocket.Conn) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if messageType != websocket.TextMessage {
			glog.Warningf("ignoring message type %d", messageType)
			continue
		}

		var command *api.Command
		if err := json.Unmarshal(message, &command); err != nil {
			glog.Errorf("malformed command: %s", err)
			continue
		}

		// Halt must not queue behind a blocked Continue; it is the one
		// command dispatched outside the run loop.
		if command.Name == api.Halt {
			if err := s.Debugger.Halt(command); err != nil {
				glog.Errorf("halt error: %s", err)
			}
			continue
		}

		s.Debugger.Commands <- command
	}
}

func (s *WebsocketServer) writeEvents(conn *websocket.Conn) {
	for event := range s.Debugger.Events {
		json, err := json.Marshal(event)
		if err != nil {
			glog.Errorf("error marshalling event: %s", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, json); err != nil {
			glog.Errorf("error writing event: %s", err)
			return
		}
	}
}
