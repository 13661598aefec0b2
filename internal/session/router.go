// Package session routes realtime events between the connections of a
// collaborative session. Structural edits go out immediately, continuous
// edits are coalesced by the throttle engine first.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/presence"
	"github.com/Vasu1712/scenyx-realtime/internal/scene"
	"github.com/Vasu1712/scenyx-realtime/internal/throttle"
	"github.com/Vasu1712/scenyx-realtime/internal/ws"
	"github.com/rs/zerolog/log"
)

// EchoPolicy says whether an event is delivered back to the connection that
// sent it.
type EchoPolicy int

const (
	// EchoToSender is used for structural edits: the sender gets the same
	// event as everybody else and needs no optimistic apply.
	EchoToSender EchoPolicy = iota
	// SkipSender is used for continuous edits the sender already applied locally.
	SkipSender
)

func (p EchoPolicy) audience() ws.Audience {
	if p == SkipSender {
		return ws.AudienceOthers
	}
	return ws.AudienceRoomAndSender
}

// Broadcaster is the part of the hub the router needs.
type Broadcaster interface {
	Join(client *ws.Client, sessionID string)
	Broadcast(msg ws.BroadcastMessage)
}

// Options tune router behaviour.
type Options struct {
	// FlushOnDisconnect fires a leaving connection's pending throttled
	// emissions instead of dropping them.
	FlushOnDisconnect bool
}

type route struct {
	echo   EchoPolicy
	handle func(ctx context.Context, c *Connection, echo EchoPolicy, data json.RawMessage)
}

// Router dispatches decoded frames of every connection to the hub, presence,
// scene store and throttle engine.
type Router struct {
	hub      Broadcaster
	presence *presence.Registry
	scenes   *scene.Store
	engine   *throttle.Engine
	opts     Options
	routes   map[string]route

	// roster serializes presence changes with the broadcast of the list they
	// produce, so peers see user lists in the order they changed.
	roster sync.Mutex
}

// NewRouter builds a router with the default dispatch table.
func NewRouter(hub Broadcaster, reg *presence.Registry, scenes *scene.Store, engine *throttle.Engine, opts Options) *Router {
	r := &Router{
		hub:      hub,
		presence: reg,
		scenes:   scenes,
		engine:   engine,
		opts:     opts,
	}
	r.routes = map[string]route{
		EventColorChange:     {echo: SkipSender, handle: r.handleColorChange},
		EventTransformChange: {echo: SkipSender, handle: r.handleTransformChange},
		EventAddObject:       {echo: EchoToSender, handle: r.handleAddObject},
		EventRemoveObject:    {echo: EchoToSender, handle: r.handleRemoveObject},
		EventJoin:            {echo: EchoToSender, handle: r.handleJoin},
		EventLeave:           {echo: EchoToSender, handle: r.handleLeave},
	}
	return r
}

// EchoPolicyOf reports the policy registered for an inbound event.
func (r *Router) EchoPolicyOf(event string) (EchoPolicy, bool) {
	rt, ok := r.routes[event]
	return rt.echo, ok
}

// Connect binds a freshly registered client to the router.
func (r *Router) Connect(client *ws.Client) *Connection {
	log.Info().Str("module", "session").Str("conn", client.ID).Msg("connection opened")
	return &Connection{router: r, client: client, state: StateConnected}
}

func (r *Router) dispatch(ctx context.Context, c *Connection, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("conn", c.client.ID).Msg("malformed frame dropped")
		return
	}
	rt, ok := r.routes[env.Event]
	if !ok {
		log.Warn().Str("module", "session").Str("conn", c.client.ID).Str("event", env.Event).Msg("unknown event dropped")
		return
	}
	rt.handle(ctx, c, rt.echo, env.Data)
}

func (r *Router) emit(sessionID string, sender *ws.Client, audience ws.Audience, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("event", event).Msg("encode payload")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("event", event).Msg("encode envelope")
		return
	}
	r.hub.Broadcast(ws.BroadcastMessage{
		SessionID: sessionID,
		Sender:    sender,
		Audience:  audience,
		Data:      frame,
	})
}

func decode(event, connID string, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		log.Warn().Str("module", "session").Str("conn", connID).Str("event", event).Msg("empty payload dropped")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("conn", connID).Str("event", event).Msg("malformed payload dropped")
		return false
	}
	return true
}

func invalid(event, connID string, err error) {
	log.Warn().Err(err).Str("module", "session").Str("conn", connID).Str("event", event).Msg("invalid payload dropped")
}

func (r *Router) handleColorChange(_ context.Context, c *Connection, echo EchoPolicy, data json.RawMessage) {
	var p colorChangeIn
	if !decode(EventColorChange, c.client.ID, data, &p) {
		return
	}
	if err := p.validate(); err != nil {
		invalid(EventColorChange, c.client.ID, err)
		return
	}
	log.Debug().Str("module", "session").Str("session", p.SessionID).Str("object", p.ID).Str("color", p.Color).Msg("color change")

	sender := c.client
	key := throttle.Key{SessionID: p.SessionID, ObjectID: p.ID, Kind: throttle.KindColor}
	r.engine.Schedule(key, sender.ID, func() {
		r.emit(p.SessionID, sender, echo.audience(), EventColorChange, ColorChange{ID: p.ID, Color: p.Color})
		color := p.Color
		r.scenes.ApplyPatch(context.Background(), p.SessionID, p.ID, models.ObjectPatch{Color: &color})
	})
}

func (r *Router) handleTransformChange(_ context.Context, c *Connection, echo EchoPolicy, data json.RawMessage) {
	var p transformChangeIn
	if !decode(EventTransformChange, c.client.ID, data, &p) {
		return
	}
	if err := p.validate(); err != nil {
		invalid(EventTransformChange, c.client.ID, err)
		return
	}
	log.Debug().Str("module", "session").Str("session", p.SessionID).Str("object", p.ID).Msg("transform change")

	sender := c.client
	key := throttle.Key{SessionID: p.SessionID, ObjectID: p.ID, Kind: throttle.KindTransform}
	r.engine.Schedule(key, sender.ID, func() {
		r.emit(p.SessionID, sender, echo.audience(), EventTransformChange, TransformChange{
			ID:       p.ID,
			Position: p.Position,
			Rotation: p.Rotation,
			Scale:    p.Scale,
		})
		patch := models.ObjectPatch{Position: p.Position, Rotation: p.Rotation, Scale: p.Scale}
		if !patch.Empty() {
			r.scenes.ApplyPatch(context.Background(), p.SessionID, p.ID, patch)
		}
	})
}

func (r *Router) handleAddObject(ctx context.Context, c *Connection, echo EchoPolicy, data json.RawMessage) {
	var p addObjectIn
	if !decode(EventAddObject, c.client.ID, data, &p) {
		return
	}
	obj, err := p.object()
	if err != nil {
		invalid(EventAddObject, c.client.ID, err)
		return
	}
	log.Info().Str("module", "session").Str("session", p.SessionID).Str("object", obj.ID).Str("type", string(obj.Type)).Msg("adding object")

	r.emit(p.SessionID, c.client, echo.audience(), EventAddObject, obj)
	if !r.scenes.Insert(ctx, p.SessionID, obj) {
		log.Debug().Str("module", "session").Str("session", p.SessionID).Msg("add for unknown session not persisted")
	}
}

func (r *Router) handleRemoveObject(ctx context.Context, c *Connection, echo EchoPolicy, data json.RawMessage) {
	var p removeObjectIn
	if !decode(EventRemoveObject, c.client.ID, data, &p) {
		return
	}
	if err := p.validate(); err != nil {
		invalid(EventRemoveObject, c.client.ID, err)
		return
	}
	log.Info().Str("module", "session").Str("session", p.SessionID).Str("object", p.ID).Msg("removing object")

	r.emit(p.SessionID, c.client, echo.audience(), EventRemoveObject, ObjectRemoved{ID: p.ID})
	r.scenes.Remove(ctx, p.SessionID, p.ID)
}

func (r *Router) handleJoin(ctx context.Context, c *Connection, _ EchoPolicy, data json.RawMessage) {
	var p joinIn
	if !decode(EventJoin, c.client.ID, data, &p) {
		return
	}
	if err := p.validate(); err != nil {
		invalid(EventJoin, c.client.ID, err)
		return
	}
	log.Info().Str("module", "session").Str("session", p.SessionID).Str("user", p.ID).Str("name", p.Name).Msg("user joining session")

	if !c.enter(p.SessionID, p.ID) {
		return
	}
	r.hub.Join(c.client, p.SessionID)
	if !r.scenes.Acquire(ctx, p.SessionID) {
		log.Warn().Str("module", "session").Str("session", p.SessionID).Msg("joined a session that is not persisted")
	} else {
		c.setCached(true)
	}
	r.roster.Lock()
	r.presence.Join(p.SessionID, models.SessionUser{ID: p.ID, Name: p.Name})
	users := r.presence.List(p.SessionID)
	r.emit(p.SessionID, c.client, ws.AudienceRoom, EventUserJoined, UsersJoined{Users: users})
	r.roster.Unlock()
	if snap, ok := r.scenes.Get(ctx, p.SessionID); ok {
		snap.ActiveUsers = r.presence.Count(p.SessionID)
		r.emit(p.SessionID, c.client, ws.AudienceSender, EventState, snap)
	}
}

func (r *Router) handleLeave(_ context.Context, c *Connection, _ EchoPolicy, _ json.RawMessage) {
	sessionID, userID, cached, ok := c.exit(StateConnected)
	if !ok {
		log.Warn().Str("module", "session").Str("conn", c.client.ID).Msg("leave outside a session dropped")
		return
	}
	r.depart(c, sessionID, userID, cached)
}

// depart runs the cleanup shared by explicit leave and disconnect.
func (r *Router) depart(c *Connection, sessionID, userID string, cached bool) {
	if r.opts.FlushOnDisconnect {
		r.engine.FlushOwner(c.client.ID)
	} else {
		r.engine.CancelOwner(c.client.ID)
	}
	if sessionID == "" {
		return
	}

	r.hub.Join(c.client, "")
	if cached {
		r.scenes.Release(sessionID)
	}
	r.roster.Lock()
	r.presence.Leave(sessionID, userID)
	users := r.presence.List(sessionID)
	r.emit(sessionID, c.client, ws.AudienceRoom, EventUserLeft, UserLeft{UserID: userID, Users: users})
	r.roster.Unlock()
	log.Info().Str("module", "session").Str("session", sessionID).Str("user", userID).Msg("user left session")
}
