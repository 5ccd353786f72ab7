package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
	"github.com/berfenger/aurum2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// grace period given to the client to honor its own context deadline
const AURUM_TASK_GRACE = 500 * time.Millisecond

// AurumActor serializes the access to one Meetstekker.
type AurumActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   port.AurumClient
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewAurumActor(client port.AurumClient, timeout time.Duration, logger *zap.Logger) *AurumActor {
	act := &AurumActor{
		client:   client,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_AURUM, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *AurumActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *AurumActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("aurum@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("aurum@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_AURUM,
			Healthy: true,
			State:   "idle",
		})
	case domain.ConnectRequest:
		state.logger.Debug("aurum@default: ConnectRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.connect),
			mapTaskResult[domain.ConnectResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ConnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout + AURUM_TASK_GRACE).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case domain.RefreshRequest:
		state.logger.Debug("aurum@default: RefreshRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.refresh),
			mapTaskResult[domain.RefreshResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.RefreshResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout + AURUM_TASK_GRACE).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	default:
		state.logger.Debug("aurum@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *AurumActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("aurum@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_AURUM,
			Healthy: true,
			State:   "fetching",
		})
	default:
		state.logger.Debug("aurum@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *AurumActor) connect() (*domain.ConnectResponse, error) {
	c, cancel := context.WithTimeout(context.Background(), state.timeout)
	defer cancel()
	connected, err := state.client.Connect(c)
	if err != nil {
		state.logger.Debug("aurum: connect failed", zap.Error(err))
		return nil, err
	}
	return &domain.ConnectResponse{
		Connected: connected,
	}, nil
}

func (state *AurumActor) refresh() (*domain.RefreshResponse, error) {
	c, cancel := context.WithTimeout(context.Background(), state.timeout)
	defer cancel()
	start := time.Now()
	if err := state.client.UpdateData(c); err != nil {
		state.logger.Debug("aurum: update failed", zap.Error(err))
		return nil, err
	}
	return &domain.RefreshResponse{
		Payload:  state.client.GetAurumData(),
		Duration: time.Since(start),
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
