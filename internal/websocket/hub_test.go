package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type HubTestSuite struct {
	suite.Suite
	hub    *Hub
	server *httptest.Server
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *HubTestSuite) SetupTest() {
	s.hub = NewHub(zap.NewNop())
	go s.hub.Run()

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(s.hub, conn)
		s.hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
}

func (s *HubTestSuite) TearDownTest() {
	s.server.Close()
	s.hub.Stop()
}

func (s *HubTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	return conn
}

func (s *HubTestSuite) readMessage(conn *websocket.Conn) *Message {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	s.Require().NoError(err)
	// write pump batches messages newline separated; take the first
	line := strings.SplitN(string(raw), "\n", 2)[0]
	var msg Message
	s.Require().NoError(json.Unmarshal([]byte(line), &msg))
	return &msg
}

func (s *HubTestSuite) register(conn *websocket.Conn, source string) {
	reg, err := NewMessage(MessageTypeRegister, RegisterData{Source: source})
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(reg))
}

func (s *HubTestSuite) TestBroadcastReachesAllClients() {
	a := s.dial()
	defer a.Close()
	b := s.dial()
	defer b.Close()

	s.Eventually(func() bool { return s.hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	msg, err := NewMessage(MessageTypeGateStatus, GateStatusData{Lane: "entry", Status: "open"})
	s.Require().NoError(err)
	s.hub.Broadcast(msg)

	for _, conn := range []*websocket.Conn{a, b} {
		got := s.readMessage(conn)
		s.Equal(MessageTypeGateStatus, got.Type)
	}
}

func (s *HubTestSuite) TestSendToSource() {
	dashboard := s.dial()
	defer dashboard.Close()
	other := s.dial()
	defer other.Close()

	s.register(dashboard, "dashboard")
	s.Eventually(func() bool {
		return len(s.hub.Sources()) == 1
	}, time.Second, 10*time.Millisecond)

	msg, err := NewMessage(MessageTypePrintStatus, PrintStatusData{Status: "success", Barcode: "T1"})
	s.Require().NoError(err)
	s.Require().NoError(s.hub.SendToSource("dashboard", msg))

	got := s.readMessage(dashboard)
	s.Equal(MessageTypePrintStatus, got.Type)

	// the unregistered client gets nothing
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	s.Error(err)
}

func (s *HubTestSuite) TestSendToUnknownSource() {
	msg, err := NewMessage(MessageTypeError, ErrorData{Message: "x"})
	s.Require().NoError(err)
	s.Equal(ErrSourceNotFound, s.hub.SendToSource("nobody", msg))
}

func (s *HubTestSuite) TestUnknownTypeIsRejectedAndDropped() {
	conn := s.dial()
	defer conn.Close()
	s.Eventually(func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"SPIN","timestamp":1}`)))

	got := s.readMessage(conn)
	s.Equal(MessageTypeError, got.Type)

	// the connection is closed after the rejection, with a close
	// frame rather than a torn socket
	_, _, err := conn.ReadMessage()
	s.Require().Error(err)
	s.True(websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived),
		"expected a clean close, got %v", err)
	s.Eventually(func() bool { return s.hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *HubTestSuite) TestClientDisconnectUnregisters() {
	conn := s.dial()
	s.Eventually(func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	s.Eventually(func() bool { return s.hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubTestSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}
