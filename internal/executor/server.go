package executor

import (
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/common/logging"
	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
	"github.com/armadaproject/elasticsched/internal/executor/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/dag"
	"github.com/armadaproject/elasticsched/internal/scheduler/profiling"
	"github.com/armadaproject/elasticsched/pkg/controlapi"
)

// Server serves the control connection of the scheduler. Connections are handled one at a time, each being
// one session that ends with END.
type Server struct {
	config  configuration.ExecutorConfiguration
	store   profiling.Store
	runner  Runner
	metrics *Metrics
	// Graphs already loaded, by query id.
	graphs map[int]*dag.StageGraph
}

// NewServer returns a server. metrics may be nil.
func NewServer(config configuration.ExecutorConfiguration, store profiling.Store, runner Runner, metrics *Metrics) *Server {
	return &Server{
		config:  config,
		store:   store,
		runner:  runner,
		metrics: metrics,
		graphs:  make(map[int]*dag.StageGraph),
	}
}

// Serve accepts connections from listener until ctx is cancelled. A failed session is logged and does not
// stop the server.
func (s *Server) Serve(ctx *schedcontext.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithStack(err)
		}
		sessionCtx := schedcontext.WithLogField(ctx, "scheduler", conn.RemoteAddr().String())
		sessionCtx.Log.Info("scheduler connected")
		if err := s.handle(sessionCtx, conn); err != nil {
			logging.WithStacktrace(sessionCtx.Log, err).Error("session failed")
			// Tasks of the failed session must not be billed to the next one.
			if _, err := s.runner.Wait(ctx); err != nil {
				return err
			}
		}
		if err := conn.Close(); err != nil {
			sessionCtx.Log.WithError(err).Warn("failed to close connection")
		}
	}
}

type session struct {
	queryID   int
	graph     *dag.StageGraph
	profiling bool
	results   []TaskResult
}

// handle runs one session. EXEC starts local tasks; END_CONT waits for them, uploads their profiles and
// replies PROFILED; END waits for them, replies ACK and, unless the session profiled, reports the cost of
// every task it ran.
func (s *Server) handle(ctx *schedcontext.Context, conn net.Conn) error {
	sess := &session{}
	for {
		p, err := controlapi.ReadPacket(conn)
		if errors.Is(err, io.EOF) {
			return errors.New("connection closed before END")
		} else if err != nil {
			return err
		}
		switch p.Tag {
		case controlapi.Exec:
			if err := s.exec(ctx, sess, p); err != nil {
				return err
			}
		case controlapi.EndCont:
			sess.profiling = true
			if err := s.uploadProfiles(ctx, sess); err != nil {
				return err
			}
			if err := controlapi.WritePacket(conn, controlapi.ControlPacket(controlapi.Profiled)); err != nil {
				return err
			}
		case controlapi.End:
			return s.end(ctx, sess, conn)
		case controlapi.TestPacket:
			ctx.Log.Infof("test packet: %s", p.Tasks.Current)
		default:
			return errors.Errorf("unexpected %s packet", p.Tag)
		}
	}
}

func (s *Server) exec(ctx *schedcontext.Context, sess *session, p *controlapi.Packet) error {
	if sess.graph == nil || sess.queryID != int(p.QueryID) {
		g, err := s.graph(int(p.QueryID))
		if err != nil {
			return err
		}
		sess.queryID, sess.graph = int(p.QueryID), g
	}
	if !p.Tasks.Current.IsLocal() {
		return nil
	}
	stage := sess.graph.Stage(int(p.Tasks.Current.StageID))
	if stage == nil {
		return errors.Errorf("query %d has no stage %d", sess.queryID, p.Tasks.Current.StageID)
	}
	if err := s.runner.Run(ctx, stage, p.Tasks); err != nil {
		return errors.WithMessagef(err, "starting stage %d", stage.ID)
	}
	if s.metrics != nil {
		s.metrics.ReportTasksStarted(int(p.Tasks.Current.NumLocalTasks))
	}
	return nil
}

func (s *Server) graph(queryID int) (*dag.StageGraph, error) {
	if g, ok := s.graphs[queryID]; ok {
		return g, nil
	}
	g, err := dag.Load(s.config.DagDirectory, queryID)
	if err != nil {
		return nil, err
	}
	limits := dag.Limits{MaxStages: s.config.MaxStages, MaxInDegree: s.config.MaxInDegree}
	if err := g.Validate(limits); err != nil {
		return nil, errors.WithMessagef(err, "query %d", queryID)
	}
	s.graphs[queryID] = g
	return g, nil
}

func (s *Server) uploadProfiles(ctx *schedcontext.Context, sess *session) error {
	results, err := s.runner.Wait(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		key := profiling.TaskKey(sess.queryID, r.Stage, r.Tasks, r.TaskID)
		if err := s.store.Put(ctx, key, r.Profile); err != nil {
			return errors.WithMessagef(err, "uploading %s", key)
		}
	}
	ctx.Log.Infof("uploaded %d profiles", len(results))
	if s.metrics != nil {
		s.metrics.ReportProfilesUploaded(len(results))
	}
	return nil
}

func (s *Server) end(ctx *schedcontext.Context, sess *session, conn net.Conn) error {
	results, err := s.runner.Wait(ctx)
	if err != nil {
		return err
	}
	sess.results = append(sess.results, results...)
	if err := controlapi.WritePacket(conn, controlapi.ControlPacket(controlapi.Ack)); err != nil {
		return err
	}
	ctx.Log.Info("tasks completed")
	if sess.profiling {
		return nil
	}
	cost := Cost(sess.results, s.config.IoChargeCapMs)
	if err := controlapi.WritePacket(conn, controlapi.CostPacket(cost)); err != nil {
		return err
	}
	ctx.Log.Infof("cost %.2f reported for %d tasks", cost, len(sess.results))
	if s.metrics != nil {
		s.metrics.ReportCost(cost)
	}
	return nil
}
