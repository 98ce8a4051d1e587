package game

// Outbound event types.
const (
	EventRoundUpdate   = "round_update"
	EventJoined        = "joined"
	EventRoundStarted  = "round_started"
	EventYourResult    = "your_result"
	EventCashedOut     = "cashed_out"
	EventCrashed       = "crashed"
	EventRoundFinished = "round_finished"
	EventHistoryUpdate = "history_update"
	EventError         = "error"
	EventPong          = "pong"
	EventInitialState  = "initial_state"
)

// Event is one outbound message variant.
type Event interface {
	EventType() string
}

// Publisher fans events out to every connected client of a game.
type Publisher interface {
	Publish(Event)
}

// WSMessage is the wire envelope of every event.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func NewMessage(e Event) WSMessage {
	return WSMessage{Type: e.EventType(), Data: e}
}

type RoundUpdateEvent struct {
	State      RoundStatus `json:"state"`
	RoundID    *string     `json:"roundId"`
	Players    int         `json:"players"`
	TimeLeftMs *int64      `json:"timeLeftMs,omitempty"`
	Multiplier *float64    `json:"multiplier,omitempty"`
}

type JoinedEvent struct {
	RoundID string `json:"roundId"`
	UserID  string `json:"userId"`
}

type RoundStartedEvent struct {
	RoundID       string          `json:"roundId"`
	LockedPlayers int             `json:"lockedPlayers"`
	StartedAt     int64           `json:"startedAt"`
	Fair          *FairCommitment `json:"fair,omitempty"`
}

// YourResultEvent carries one settled plinko bet of a round.
type YourResultEvent struct {
	BetRecord
	RoundID string `json:"roundId"`
}

type CashedOutEvent struct {
	RoundID      string  `json:"roundId"`
	UserID       string  `json:"userId"`
	AtMultiplier float64 `json:"atMultiplier"`
	Payout       float64 `json:"payout"`
	BalanceAfter float64 `json:"balanceAfter"`
	CreatedAt    string  `json:"createdAt"`
}

type CrashedEvent struct {
	RoundID         string  `json:"roundId"`
	CrashMultiplier float64 `json:"crashMultiplier"`
}

type RoundFinishedEvent struct {
	RoundID    string `json:"roundId"`
	DurationMs int64  `json:"durationMs"`
}

type HistoryUpdateEvent struct {
	Latest *HistoryItem   `json:"latest"`
	Chips  []HistoryGroup `json:"chips"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongEvent struct {
	Timestamp int64 `json:"timestamp"`
}

type InitialStateEvent struct {
	Round *RoundView `json:"round"`
}

func (RoundUpdateEvent) EventType() string   { return EventRoundUpdate }
func (JoinedEvent) EventType() string        { return EventJoined }
func (RoundStartedEvent) EventType() string  { return EventRoundStarted }
func (YourResultEvent) EventType() string    { return EventYourResult }
func (CashedOutEvent) EventType() string     { return EventCashedOut }
func (CrashedEvent) EventType() string       { return EventCrashed }
func (RoundFinishedEvent) EventType() string { return EventRoundFinished }
func (HistoryUpdateEvent) EventType() string { return EventHistoryUpdate }
func (ErrorEvent) EventType() string         { return EventError }
func (PongEvent) EventType() string          { return EventPong }
func (InitialStateEvent) EventType() string  { return EventInitialState }

// NewErrorEvent converts err into the error event sent to the caller.
func NewErrorEvent(err error, fallback string) ErrorEvent {
	return ErrorEvent{Code: ErrorCode(err, fallback), Message: PublicMessage(err)}
}

func idleUpdate() RoundUpdateEvent {
	zero := int64(0)
	return RoundUpdateEvent{State: StatusIdle, TimeLeftMs: &zero}
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
