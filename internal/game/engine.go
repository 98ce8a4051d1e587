package game

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type GameType string

const (
	GameTypeCrash        GameType = "crash"
	GameTypePlinko       GameType = "plinko"
	GameTypePlinkoRounds GameType = "plinko_rounds"
)

type GameEngine interface {
	GetType() GameType
	Start(ctx context.Context) error
	Stop() error
	Commitment() string
	GetState() interface{}
}

// GameFactory owns the lifecycle of every registered engine. Engines start in
// registration order and stop in reverse.
type GameFactory struct {
	engines map[GameType]GameEngine
	order   []GameType
}

func NewGameFactory() *GameFactory {
	return &GameFactory{
		engines: make(map[GameType]GameEngine),
	}
}

func (gf *GameFactory) RegisterEngine(engine GameEngine) {
	if _, exists := gf.engines[engine.GetType()]; !exists {
		gf.order = append(gf.order, engine.GetType())
	}
	gf.engines[engine.GetType()] = engine
}

func (gf *GameFactory) GetEngine(gameType GameType) (GameEngine, bool) {
	engine, exists := gf.engines[gameType]
	return engine, exists
}

func (gf *GameFactory) Types() []GameType {
	out := make([]GameType, len(gf.order))
	copy(out, gf.order)
	return out
}

func (gf *GameFactory) StartAll(ctx context.Context) error {
	for _, gameType := range gf.order {
		if err := gf.engines[gameType].Start(ctx); err != nil {
			return fmt.Errorf("start %s engine: %w", gameType, err)
		}
		log.Printf("[FACTORY] Started %s engine", gameType)
	}
	return nil
}

func (gf *GameFactory) StopAll() error {
	for i := len(gf.order) - 1; i >= 0; i-- {
		gameType := gf.order[i]
		if err := gf.engines[gameType].Stop(); err != nil {
			return fmt.Errorf("stop %s engine: %w", gameType, err)
		}
		log.Printf("[FACTORY] Stopped %s engine", gameType)
	}
	return nil
}

// Commitments returns the server seed hash of every engine.
func (gf *GameFactory) Commitments() map[GameType]string {
	out := make(map[GameType]string, len(gf.engines))
	for gameType, engine := range gf.engines {
		out[gameType] = engine.Commitment()
	}
	return out
}
