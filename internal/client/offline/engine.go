package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/biosight/internal/client/api"
	"github.com/bryanwahyu/biosight/internal/client/render"
)

const (
	// maxCooldownRetries bounds how often one specimen is resent after a 429.
	maxCooldownRetries = 3
	// defaultCooldownWait applies when a 429 carries no Retry-After.
	defaultCooldownWait = 10 * time.Second
)

type State int

const (
	Online State = iota
	Offline
)

func (s State) String() string {
	if s == Online {
		return "ONLINE"
	}
	return "OFFLINE"
}

// Submitter sends one specimen through the gateway pipeline.
type Submitter interface {
	Submit(ctx context.Context, s api.Specimen) (*api.SubmitResult, error)
}

// Outcome is the answer to one SubmitMsg.
type Outcome struct {
	Interpretation json.RawMessage
	ImageID        string
	Demo           bool
	// Queued is set when the specimen was stored for a later drain instead
	// of being analyzed. Cause holds the network error, if any.
	Queued  bool
	QueueID int64
	Cause   error
}

type NoticeKind int

const (
	NoticeQueued NoticeKind = iota
	NoticeSynced
	NoticeDropped
	NoticeDrained
)

// Notice reports background progress of the engine.
type Notice struct {
	Kind     NoticeKind
	Filename string
	QueueID  int64
	Result   *api.SubmitResult
	Err      error
	// Set on NoticeDrained.
	Sent, Dropped int
}

// Messages accepted by Engine.Send.
type (
	ConnectivityMsg struct{ Online bool }
	DemoMsg         struct{ On bool }
	SubmitMsg       struct {
		Specimen api.Specimen
		Reply    chan<- SubmitReply
	}
	DrainMsg struct{ Reply chan<- DrainReport }
)

type SubmitReply struct {
	Outcome Outcome
	Err     error
}

// DrainReport summarizes one pass over the queue.
type DrainReport struct {
	Sent, Dropped int
	// Err is the failure that stopped the pass. Unsent items stay queued.
	Err error
}

type submitResultMsg struct {
	spec  api.Specimen
	reply chan<- SubmitReply
	res   *api.SubmitResult
	err   error
}

type drainFinishedMsg struct{ report DrainReport }

type noticeMsg struct{ n Notice }

// Engine serializes connectivity changes, submissions and queue drains on
// one goroutine. Network calls run off-loop and report back as messages.
type Engine struct {
	Client    Submitter
	Queue     Queue
	Log       logrus.FieldLogger
	DemoDelay time.Duration
	// Notify receives background notices on the loop goroutine.
	Notify func(Notice)

	msgs     chan any
	state    State
	demo     bool
	draining bool
	waiters  []chan<- DrainReport
}

func NewEngine(client Submitter, q Queue, log logrus.FieldLogger) *Engine {
	return &Engine{
		Client:    client,
		Queue:     q,
		Log:       log,
		DemoDelay: render.DemoDelay,
		msgs:      make(chan any, 16),
		state:     Online,
	}
}

// Send posts msg to the loop.
func (e *Engine) Send(ctx context.Context, msg any) error {
	select {
	case e.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit posts a SubmitMsg and waits for its reply.
func (e *Engine) Submit(ctx context.Context, s api.Specimen) (Outcome, error) {
	reply := make(chan SubmitReply, 1)
	if err := e.Send(ctx, SubmitMsg{Specimen: s, Reply: reply}); err != nil {
		return Outcome{}, err
	}
	select {
	case r := <-reply:
		return r.Outcome, r.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Drain posts a DrainMsg and waits for the pass to finish.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	reply := make(chan DrainReport, 1)
	if err := e.Send(ctx, DrainMsg{Reply: reply}); err != nil {
		return DrainReport{}, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return DrainReport{}, ctx.Err()
	}
}

func (e *Engine) SetOnline(ctx context.Context, online bool) error {
	return e.Send(ctx, ConnectivityMsg{Online: online})
}

func (e *Engine) SetDemo(ctx context.Context, on bool) error {
	return e.Send(ctx, DemoMsg{On: on})
}

// Run processes messages until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-e.msgs:
			e.update(ctx, m)
		}
	}
}

func (e *Engine) update(ctx context.Context, m any) {
	switch m := m.(type) {
	case ConnectivityMsg:
		prev := e.state
		e.state = Offline
		if m.Online {
			e.state = Online
		}
		if prev != e.state {
			e.Log.WithField("state", e.state.String()).Info("connectivity changed")
		}
		if prev == Offline && e.state == Online {
			e.startDrain(ctx)
		}

	case DemoMsg:
		e.demo = m.On

	case SubmitMsg:
		e.handleSubmit(ctx, m)

	case submitResultMsg:
		e.handleSubmitResult(ctx, m)

	case DrainMsg:
		if m.Reply != nil {
			e.waiters = append(e.waiters, m.Reply)
		}
		e.startDrain(ctx)

	case noticeMsg:
		e.notify(m.n)

	case drainFinishedMsg:
		e.draining = false
		r := m.report
		entry := e.Log.WithFields(logrus.Fields{"sent": r.Sent, "dropped": r.Dropped})
		if r.Err != nil {
			entry.WithError(r.Err).Warn("queue drain stopped")
		} else {
			entry.Info("queue drained")
		}
		e.notify(Notice{Kind: NoticeDrained, Sent: r.Sent, Dropped: r.Dropped, Err: r.Err})
		for _, w := range e.waiters {
			select {
			case w <- r:
			default:
			}
		}
		e.waiters = nil
	}
}

func (e *Engine) handleSubmit(ctx context.Context, m SubmitMsg) {
	if e.demo {
		go func() {
			select {
			case <-time.After(e.DemoDelay):
				respond(m.Reply, SubmitReply{Outcome: Outcome{Interpretation: render.DemoPayload(), Demo: true}})
			case <-ctx.Done():
				respond(m.Reply, SubmitReply{Err: ctx.Err()})
			}
		}()
		return
	}

	if e.state == Offline {
		id, err := e.enqueue(ctx, m.Specimen)
		respond(m.Reply, SubmitReply{Outcome: Outcome{Queued: err == nil, QueueID: id}, Err: err})
		return
	}

	go func() {
		res, err := e.submit(ctx, m.Specimen)
		e.post(ctx, submitResultMsg{spec: m.Specimen, reply: m.Reply, res: res, err: err})
	}()
}

func (e *Engine) handleSubmitResult(ctx context.Context, m submitResultMsg) {
	switch {
	case m.err == nil:
		respond(m.reply, SubmitReply{Outcome: Outcome{Interpretation: m.res.Interpretation, ImageID: m.res.ImageID}})
	case errors.Is(m.err, api.ErrTransport):
		id, err := e.enqueue(ctx, m.spec)
		if err != nil {
			respond(m.reply, SubmitReply{Err: fmt.Errorf("%w (queue: %v)", m.err, err)})
			return
		}
		respond(m.reply, SubmitReply{Outcome: Outcome{Queued: true, QueueID: id, Cause: m.err}})
	default:
		respond(m.reply, SubmitReply{Err: m.err})
	}
}

func (e *Engine) enqueue(ctx context.Context, s api.Specimen) (int64, error) {
	id, err := e.Queue.Enqueue(ctx, Item{
		Filename: s.Filename,
		MIME:     mimetype.Detect(s.Data).String(),
		Data:     s.Data,
	})
	if err != nil {
		e.Log.WithError(err).WithField("file", s.Filename).Error("enqueue specimen")
		return 0, err
	}
	e.Log.WithFields(logrus.Fields{"file": s.Filename, "queue_id": id}).Info("specimen queued")
	e.notify(Notice{Kind: NoticeQueued, Filename: s.Filename, QueueID: id})
	return id, nil
}

func (e *Engine) startDrain(ctx context.Context) {
	if e.draining {
		return
	}
	e.draining = true
	go func() {
		e.post(ctx, drainFinishedMsg{report: e.drain(ctx)})
	}()
}

// drain resubmits queued items one at a time in insertion order. An item is
// removed only after the gateway accepted it, or rejected it as invalid.
func (e *Engine) drain(ctx context.Context) DrainReport {
	var r DrainReport
	items, err := e.Queue.Pending(ctx)
	if err != nil {
		r.Err = err
		return r
	}
	for _, it := range items {
		res, err := e.submit(ctx, api.Specimen{Filename: it.Filename, Data: it.Data})
		switch {
		case err == nil:
			if err := e.Queue.Remove(ctx, it.ID); err != nil {
				r.Err = err
				return r
			}
			r.Sent++
			e.post(ctx, noticeMsg{Notice{Kind: NoticeSynced, Filename: it.Filename, QueueID: it.ID, Result: res}})
		case errors.Is(err, api.ErrInvalidUpload):
			if err := e.Queue.Remove(ctx, it.ID); err != nil {
				r.Err = err
				return r
			}
			r.Dropped++
			e.post(ctx, noticeMsg{Notice{Kind: NoticeDropped, Filename: it.Filename, QueueID: it.ID, Err: err}})
		default:
			r.Err = err
			return r
		}
	}
	return r
}

// submit sends s and, when the gateway answers 429, waits out the cooldown
// it announced and sends s again.
func (e *Engine) submit(ctx context.Context, s api.Specimen) (*api.SubmitResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := e.Client.Submit(ctx, s)
		var rej *api.RejectedError
		if err == nil || !errors.As(err, &rej) || !rej.RateLimited() || attempt == maxCooldownRetries {
			return res, err
		}
		wait := rej.RetryAfter
		if wait <= 0 {
			wait = defaultCooldownWait
		}
		e.Log.WithFields(logrus.Fields{"file": s.Filename, "wait": wait}).Info("gateway cooldown, resending")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// respond delivers r unless the sender asked for no reply. Reply channels
// should be buffered.
func respond(ch chan<- SubmitReply, r SubmitReply) {
	if ch != nil {
		ch <- r
	}
}

func (e *Engine) post(ctx context.Context, m any) {
	select {
	case e.msgs <- m:
	case <-ctx.Done():
	}
}

func (e *Engine) notify(n Notice) {
	if e.Notify != nil {
		e.Notify(n)
	}
}
