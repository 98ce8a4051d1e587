package server

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/game"
)

const (
	MSG_JOIN_ROUND = "join_round"
	MSG_CASHOUT    = "cashout"
	MSG_PING       = "ping"

	localUserID = "userID"
)

// sender is the reply side of one socket.
type sender interface {
	Send(game.Event)
}

// inboundMessage accepts both {"type", "data": {...}} and a flat object
// carrying the fields next to type.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wireUserID accepts a user id sent either as a JSON string or a number.
type wireUserID string

func (w *wireUserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = wireUserID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*w = wireUserID(n.String())
	return nil
}

func (w wireUserID) or(fallback string) string {
	if w == "" {
		return fallback
	}
	return string(w)
}

type joinPayload struct {
	UserID     wireUserID      `json:"userId"`
	Bet        float64         `json:"bet"`
	ClientSeed string          `json:"clientSeed"`
	Risk       game.PlinkoRisk `json:"risk"`
	Rows       int             `json:"rows"`
}

type cashoutPayload struct {
	UserID wireUserID `json:"userId"`
}

func decodeInbound(raw []byte) (string, []byte, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", nil, err
	}
	if len(msg.Data) == 0 || bytes.Equal(msg.Data, []byte("null")) {
		return msg.Type, raw, nil
	}
	return msg.Type, msg.Data, nil
}

func sendError(out sender, err error, fallback string) {
	out.Send(game.NewErrorEvent(err, fallback))
}

// recoverInto turns a handler panic into an INTERNAL_ERROR for the caller.
func recoverInto(out sender) {
	if r := recover(); r != nil {
		log.Errorf("[WS] Handler panic: %v", r)
		sendError(out, game.ErrInternal, game.CodeInternal)
	}
}

func (s *FiberServer) crashSocketHandler(conn *websocket.Conn) {
	var latest *game.HistoryItem
	if item, ok := s.crash.History().Latest(); ok {
		latest = &item
	}
	welcome := []game.Event{
		game.InitialStateEvent{Round: s.crash.CurrentRound()},
		game.HistoryUpdateEvent{Latest: latest, Chips: s.crash.History().DedupByOutcome(game.HISTORY_CHIPS)},
	}
	serveSocket(conn, s.crashHub, welcome, s.handleCrashMessage)
}

func (s *FiberServer) plinkoSocketHandler(conn *websocket.Conn) {
	welcome := []game.Event{
		game.InitialStateEvent{Round: s.plinkoRounds.CurrentRound()},
	}
	serveSocket(conn, s.plinkoHub, welcome, s.handlePlinkoMessage)
}

// serveSocket registers the connection with hub and feeds inbound text
// frames to handle until the peer goes away.
func serveSocket(conn *websocket.Conn, hub *game.Hub, welcome []game.Event, handle func(sender, string, []byte)) {
	userID, _ := conn.Locals(localUserID).(string)
	if userID == "" {
		userID = DEFAULT_USER_ID
	}

	client := hub.RegisterClient(conn, userID)
	defer func() {
		hub.UnregisterClient(client)
		<-client.Done()
	}()

	for _, e := range welcome {
		client.Send(e)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for user %s: %v", userID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(client, userID, message)
	}
}

func (s *FiberServer) handleCrashMessage(out sender, connUser string, raw []byte) {
	defer recoverInto(out)

	msgType, data, err := decodeInbound(raw)
	if err != nil {
		sendError(out, game.ErrInvalidPayload, game.CodeInvalidPayload)
		return
	}

	switch msgType {
	case MSG_JOIN_ROUND:
		var p joinPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Bet == 0 || p.ClientSeed == "" {
			sendError(out, game.ErrInvalidPayload, game.CodeInvalidPayload)
			return
		}
		userID := p.UserID.or(connUser)
		res, err := s.crash.Join(userID, p.Bet, p.ClientSeed)
		if err != nil {
			sendError(out, err, game.CodeJoinFailed)
			return
		}
		out.Send(game.JoinedEvent{RoundID: res.RoundID, UserID: userID})

	case MSG_CASHOUT:
		var p cashoutPayload
		if err := json.Unmarshal(data, &p); err != nil {
			sendError(out, game.ErrInvalidPayload, game.CodeInvalidPayload)
			return
		}
		// The cashed_out broadcast reaches this client through the hub.
		if _, err := s.crash.Cashout(p.UserID.or(connUser)); err != nil {
			sendError(out, err, game.CodeCashoutFailed)
		}

	case MSG_PING:
		out.Send(game.PongEvent{Timestamp: time.Now().UnixMilli()})

	default:
		log.Debugf("[WS] Ignoring crash message type %q", msgType)
	}
}

func (s *FiberServer) handlePlinkoMessage(out sender, connUser string, raw []byte) {
	defer recoverInto(out)

	msgType, data, err := decodeInbound(raw)
	if err != nil {
		sendError(out, game.ErrInvalidPayload, game.CodeInvalidPayload)
		return
	}

	switch msgType {
	case MSG_JOIN_ROUND:
		var p joinPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Bet == 0 || p.Risk == "" || p.ClientSeed == "" {
			sendError(out, game.ErrInvalidPayload, game.CodeInvalidPayload)
			return
		}
		userID := p.UserID.or(connUser)
		res, err := s.plinkoRounds.Join(game.PlinkoBetRequest{
			UserID:     userID,
			Bet:        p.Bet,
			Rows:       p.Rows,
			Risk:       p.Risk,
			ClientSeed: p.ClientSeed,
		})
		if err != nil {
			sendError(out, err, game.CodeJoinFailed)
			return
		}
		out.Send(game.JoinedEvent{RoundID: res.RoundID, UserID: userID})

	case MSG_PING:
		out.Send(game.PongEvent{Timestamp: time.Now().UnixMilli()})

	default:
		log.Debugf("[WS] Ignoring plinko message type %q", msgType)
	}
}
