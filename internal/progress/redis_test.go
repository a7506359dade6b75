package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisSinkTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	sink   *RedisSink
	ctx    context.Context
}

func (s *RedisSinkTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.ctx = context.Background()

	sink, err := NewRedisSink(s.ctx, RedisOpts{Client: s.client, ReplayLimit: 3, TTL: time.Hour})
	s.Require().NoError(err)
	s.sink = sink
}

func (s *RedisSinkTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisSinkTestSuite(t *testing.T) {
	suite.Run(t, new(RedisSinkTestSuite))
}

func (s *RedisSinkTestSuite) TestEmitAndReplay() {
	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: TurnStart, SessionID: "sess-1", Speaker: "Writer", Turn: 1}))
	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: TurnEnd, SessionID: "sess-1", Speaker: "Writer", Turn: 1, Content: "outline"}))

	events, err := s.sink.Replay(s.ctx, "sess-1", 0)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(TurnStart, events[0].Type)
	s.Equal(int64(1), events[0].Seq)
	s.Equal(int64(2), events[1].Seq)
	s.Equal("outline", events[1].Content)

	later, err := s.sink.Replay(s.ctx, "sess-1", 1)
	s.Require().NoError(err)
	s.Require().Len(later, 1)
	s.Equal(TurnEnd, later[0].Type)
}

func (s *RedisSinkTestSuite) TestChunksAreNotReplayed() {
	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: Chunk, SessionID: "sess-2", Content: "Once"}))
	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: Completed, SessionID: "sess-2"}))

	events, err := s.sink.Replay(s.ctx, "sess-2", 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(Completed, events[0].Type)
	s.Equal(int64(2), events[0].Seq)
}

func (s *RedisSinkTestSuite) TestReplayIsBounded() {
	for i := 1; i <= 5; i++ {
		s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: TurnEnd, SessionID: "sess-3", Turn: i}))
	}
	events, err := s.sink.Replay(s.ctx, "sess-3", 0)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(3, events[0].Turn)
	s.Equal(5, events[2].Turn)
}

func (s *RedisSinkTestSuite) TestReplayKeysExpire() {
	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: TurnEnd, SessionID: "sess-4"}))
	s.True(s.mr.TTL(replayPrefix+"sess-4") > 0)

	s.mr.FastForward(2 * time.Hour)
	events, err := s.sink.Replay(s.ctx, "sess-4", 0)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *RedisSinkTestSuite) TestSessionsAreIsolated() {
	for i := 0; i < 2; i++ {
		s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: TurnEnd, SessionID: fmt.Sprintf("iso-%d", i)}))
	}
	events, err := s.sink.Replay(s.ctx, "iso-0", 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(int64(1), events[0].Seq)
}

func (s *RedisSinkTestSuite) TestNewRedisSinkValidation() {
	_, err := NewRedisSink(s.ctx, RedisOpts{})
	s.Error(err)

	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer dead.Close()
	_, err = NewRedisSink(s.ctx, RedisOpts{Client: dead})
	s.Error(err)
}

func (s *RedisSinkTestSuite) TestEmitPublishesChunks() {
	ps := s.client.Subscribe(s.ctx, channel("sess-5"))
	defer ps.Close()
	_, err := ps.Receive(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.sink.Emit(s.ctx, Event{Type: Chunk, SessionID: "sess-5", Content: "Once"}))

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(ctx)
	s.Require().NoError(err)
	var ev Event
	s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &ev))
	s.Equal(Chunk, ev.Type)
	s.Equal("Once", ev.Content)
	s.Equal(int64(1), ev.Seq)
}
