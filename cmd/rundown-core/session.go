package main

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/engine"
	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/rundownhq/collab-core/internal/realtime"
	"github.com/rundownhq/collab-core/internal/save"
	"github.com/rundownhq/collab-core/internal/store"
	"github.com/rundownhq/collab-core/internal/transform"
)

// documentSession bundles one document's C3 engine, C4 save coordinator,
// and C5 reconnection coordinator — the per-document, per-process
// instance the spec's scheduling model describes (spec §5 "Single-
// threaded cooperative inside one process instance per user session").
type documentSession struct {
	documentID string
	engine     *engine.Engine
	saves      *save.Coordinator
	realtime   *realtime.Coordinator

	mu      sync.Mutex
	sockets map[*wsClient]struct{}
}

func toDocument(rec store.DocumentRecord) ot.Document {
	return ot.Document{
		ID:        rec.ID,
		Title:     rec.Title,
		StartTime: rec.StartTime,
		Timezone:  rec.Timezone,
		ShowDate:  rec.ShowDate,
		Rows:      rec.RowsOrdered,
	}
}

// newDocumentSession loads documentID from st and wires its three
// coordinators together: applied operations flush into the save
// coordinator, and the realtime coordinator's channel handlers subscribe
// through st.
func newDocumentSession(ctx context.Context, documentID string, st store.Store, auth realtime.AuthGate, realtimeCfg realtime.Config, realtimeMetrics *realtime.Metrics, transport realtime.Transport) (*documentSession, error) {
	rec, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	eng := engine.New(documentID, toDocument(rec), engine.Config{
		Transform:          transform.DefaultConfig(),
		LogRetention:       time.Hour,
		AutoResolveTimeout: 30 * time.Second,
	}, nil)

	saveCfg := save.DefaultConfig()
	coord := save.New(documentID, st, eng, saveCfg)

	rt := realtime.New(documentID, transport, auth, realtimeCfg, realtimeMetrics, nil)

	sess := &documentSession{
		documentID: documentID,
		engine:     eng,
		saves:      coord,
		realtime:   rt,
		sockets:    make(map[*wsClient]struct{}),
	}

	eng.OnOperationApplied(func(op ot.Operation) {
		sess.onApplied(op)
	})

	for _, kind := range []store.ChannelKind{store.ChannelConsolidated, store.ChannelCell, store.ChannelShowcaller} {
		kind := kind
		rt.RegisterChannel(channelFor(kind), func(ctx context.Context) error {
			_, err := st.Subscribe(ctx, documentID, kind)
			return err
		})
	}

	return sess, nil
}

func channelFor(kind store.ChannelKind) realtime.Channel {
	switch kind {
	case store.ChannelCell:
		return realtime.Cell
	case store.ChannelShowcaller:
		return realtime.Showcaller
	default:
		return realtime.Consolidated
	}
}

// onApplied persists the operation through the save coordinator and
// broadcasts it to every connected socket on this document, the
// submitting one included.
func (s *documentSession) onApplied(op ot.Operation) {
	switch op.Type {
	case ot.FieldUpdate:
		if op.Payload.HasNewValue {
			s.saves.EnqueueCellSave(op.TargetID, op.Field, op.Payload.NewValue, op.Timestamp)
		}
	case ot.TextInsert, ot.TextDelete, ot.TextReplace:
		doc := s.engine.Document()
		for _, row := range doc.Rows {
			if row.ID == op.TargetID {
				s.saves.EnqueueCellSave(op.TargetID, op.Field, row.Field(op.Field), op.Timestamp)
				break
			}
		}
	case ot.ItemInsert, ot.ItemDelete, ot.ItemMove:
		if err := s.saves.EnqueueStructuralSave(structuralKindFor(op.Type), op.Payload); err != nil {
			log.WithField("document", s.documentID).WithError(err).Warn("failed to enqueue structural save")
		}
	}

	s.broadcast(op)
}

func structuralKindFor(t ot.OperationType) save.StructuralKind {
	switch t {
	case ot.ItemInsert:
		return save.KindAddRow
	case ot.ItemDelete:
		return save.KindDeleteRow
	default:
		return save.KindMoveRows
	}
}

func (s *documentSession) broadcast(op ot.Operation) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.sockets))
	for c := range s.sockets {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.send(op)
	}
}

func (s *documentSession) addClient(c *wsClient) {
	s.mu.Lock()
	s.sockets[c] = struct{}{}
	s.mu.Unlock()
}

func (s *documentSession) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.sockets, c)
	s.mu.Unlock()
}

// sessionRegistry is the process-wide map of documentID to documentSession,
// lazily populated on first websocket connection.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*documentSession

	st              store.Store
	auth            realtime.AuthGate
	realtimeCfg     realtime.Config
	realtimeMetrics *realtime.Metrics
	newTransport    func(documentID string) realtime.Transport
}

func newSessionRegistry(st store.Store, auth realtime.AuthGate, cfg realtime.Config, metrics *realtime.Metrics, newTransport func(string) realtime.Transport) *sessionRegistry {
	return &sessionRegistry{
		sessions:        make(map[string]*documentSession),
		st:              st,
		auth:            auth,
		realtimeCfg:     cfg,
		realtimeMetrics: metrics,
		newTransport:    newTransport,
	}
}

func (r *sessionRegistry) getOrCreate(ctx context.Context, documentID string) (*documentSession, error) {
	r.mu.Lock()
	sess, ok := r.sessions[documentID]
	r.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess, err := newDocumentSession(ctx, documentID, r.st, r.auth, r.realtimeCfg, r.realtimeMetrics, r.newTransport(documentID))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.sessions[documentID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[documentID] = sess
	r.mu.Unlock()
	return sess, nil
}
