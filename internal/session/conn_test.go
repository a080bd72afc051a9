package session

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"exchange_go/internal/codec"
	"exchange_go/internal/event"
)

// fakeEngine captures the events a connection produces.
type fakeEngine struct {
	inbox chan event.Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{inbox: make(chan event.Event, 64)}
}

func (e *fakeEngine) Inbox() chan<- event.Event { return e.inbox }
func (e *fakeEngine) Now() float64              { return 1.5 }

func (e *fakeEngine) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-e.inbox:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an engine event")
		return nil
	}
}

func dialTestServer(t *testing.T, eng Engine) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		go NewConn(ws, eng, slog.Default()).Run()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, payload []byte) {
	t.Helper()
	if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatal(err)
	}
}

func TestConnLoginThenInsert(t *testing.T) {
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	send(t, ws, codec.EncodeLogin(nil, codec.Login{Name: "alpha", Secret: "secret-a"}))
	login, ok := eng.next(t).(*event.LoginEvent)
	if !ok {
		t.Fatal("first event is not a login")
	}
	if login.Name != "alpha" || login.Secret != "secret-a" {
		t.Errorf("login = %q/%q", login.Name, login.Secret)
	}
	if login.Ts != 1.5 {
		t.Errorf("login timestamped %v at arrival, want 1.5", login.Ts)
	}

	send(t, ws, codec.EncodeInsert(nil, codec.Insert{
		ClientOrderID: 7,
		Side:          1,
		Price:         10000,
		Volume:        5,
		Lifespan:      1,
	}))
	ins, ok := eng.next(t).(*event.InsertEvent)
	if !ok {
		t.Fatal("second event is not an insert")
	}
	if ins.ClientOrderID != 7 || ins.Price != 10000 || ins.Volume != 5 {
		t.Errorf("insert = %+v", ins)
	}
	if ins.GetConn() != login.GetConn() {
		t.Error("events from one websocket must carry the same connection")
	}
}

func TestConnBatchedFramesInOneMessage(t *testing.T) {
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	// Encode each frame into its own buffer; the codec reuses dst as
	// scratch space rather than appending to it.
	payload := codec.EncodeLogin(nil, codec.Login{Name: "alpha", Secret: "s"})
	payload = append(payload, codec.EncodeInsert(nil, codec.Insert{ClientOrderID: 1, Side: 1, Price: 9900, Volume: 2, Lifespan: 1})...)
	payload = append(payload, codec.EncodeCancel(nil, codec.Cancel{ClientOrderID: 1})...)
	send(t, ws, payload)

	if _, ok := eng.next(t).(*event.LoginEvent); !ok {
		t.Fatal("expected a login event")
	}
	if _, ok := eng.next(t).(*event.InsertEvent); !ok {
		t.Fatal("expected an insert event")
	}
	if _, ok := eng.next(t).(*event.CancelEvent); !ok {
		t.Fatal("expected a cancel event")
	}
}

func TestConnRejectsOrderBeforeLogin(t *testing.T) {
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	send(t, ws, codec.EncodeInsert(nil, codec.Insert{ClientOrderID: 1, Side: 1, Price: 9900, Volume: 2, Lifespan: 1}))

	// The error report is best effort; the close is not.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		typ, frame, _, ok := codec.NextFrame(data)
		if !ok || typ != codec.MsgError {
			t.Fatalf("frame type = %d, want error", typ)
		}
		if em, _ := codec.DecodeError(frame); em.Message == "" {
			t.Error("error message is empty")
		}
	}

	if _, ok := eng.next(t).(*event.DisconnectEvent); !ok {
		t.Error("engine must be told about the teardown")
	}
}

func TestConnClosesOnMalformedFrame(t *testing.T) {
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	send(t, ws, codec.EncodeLogin(nil, codec.Login{Name: "alpha", Secret: "s"}))
	eng.next(t) // login

	send(t, ws, []byte{0xFF, 0xFF, 0xFF})

	deadline := time.Now().Add(2 * time.Second)
	ws.SetReadDeadline(deadline)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break // server closed the socket
		}
		if time.Now().After(deadline) {
			t.Fatal("connection not closed after a malformed frame")
		}
	}

	sawDisconnect := false
	for !sawDisconnect {
		if _, ok := eng.next(t).(*event.DisconnectEvent); ok {
			sawDisconnect = true
		}
	}
}

func TestConnLoginTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the login timeout")
	}
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("silent connection should be dropped after the login timeout")
	}
	if _, ok := eng.next(t).(*event.DisconnectEvent); !ok {
		t.Error("engine must be told about the teardown")
	}
}

func TestConnIgnoresTextMessages(t *testing.T) {
	eng := newFakeEngine()
	ws := dialTestServer(t, eng)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	send(t, ws, codec.EncodeLogin(nil, codec.Login{Name: "alpha", Secret: "s"}))

	if _, ok := eng.next(t).(*event.LoginEvent); !ok {
		t.Fatal("text frames must be skipped, not treated as protocol errors")
	}
}
