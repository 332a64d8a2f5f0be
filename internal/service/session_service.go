package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/audio"
	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/lesson"
	"github.com/windfall/storyspeak/internal/practice"
	"github.com/windfall/storyspeak/internal/repository"
	"github.com/windfall/storyspeak/internal/session"
)

// SessionOptions configure session behavior.
type SessionOptions struct {
	AITimeout              time.Duration
	IdleTTL                time.Duration
	MaxBlanks              int
	AllowDuplicateMeanings bool
	WordAdvanceDelay       time.Duration
	ConnectDelay           time.Duration
	Greeting               string
}

// Publisher receives a snapshot after every change to a session.
type Publisher interface {
	Publish(sessionID string, snap session.Snapshot)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, session.Snapshot) {}

// Session is one learner's state machine and the work in flight for it.
type Session struct {
	repository.BaseEntity

	mu         sync.Mutex
	machine    *session.Machine
	lastActive time.Time
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc

	// roleplayCancel ends the connect timer and partner calls of the
	// current roleplay visit.
	roleplayCancel context.CancelFunc
	wordTimer      *time.Timer

	// pending holds the partner request IDs issued to this session that
	// have not been collected yet.
	pending map[string]struct{}
}

// close releases everything the session holds. The caller holds mu.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopWordTimer()
	s.endRoleplay()
	s.cancel()
}

func (s *Session) stopWordTimer() {
	if s.wordTimer != nil {
		s.wordTimer.Stop()
		s.wordTimer = nil
	}
}

func (s *Session) endRoleplay() {
	if s.roleplayCancel != nil {
		s.roleplayCancel()
		s.roleplayCancel = nil
	}
}

// SessionView is a session snapshot with its ID.
type SessionView struct {
	ID string `json:"id"`
	session.Snapshot
}

// SessionService owns the live sessions and drives their state machines.
type SessionService struct {
	repo      *repository.InMemoryRepository[*Session]
	gw        gateway.Gateway
	partner   gateway.Partner
	replies   ReplyQueue
	publisher Publisher
	opts      SessionOptions
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	newRNG func() practice.Rand
}

// NewSessionService creates a session service.
func NewSessionService(
	gw gateway.Gateway,
	partner gateway.Partner,
	replies ReplyQueue,
	opts SessionOptions,
	log zerolog.Logger,
) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		repo:      repository.NewInMemoryRepository[*Session](),
		gw:        gw,
		partner:   partner,
		replies:   replies,
		publisher: nopPublisher{},
		opts:      opts,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		newRNG:    func() practice.Rand { return practice.NewTimeRand() },
	}
}

// SetPublisher sets where snapshots are sent.
func (s *SessionService) SetPublisher(p Publisher) {
	s.publisher = p
}

// Create starts a new session on the input screen.
func (s *SessionService) Create(ctx context.Context) (*SessionView, error) {
	now := s.now()
	sctx, cancel := context.WithCancel(s.ctx)
	sess := &Session{
		BaseEntity: repository.BaseEntity{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		machine: session.NewMachine(session.Options{
			MaxBlanks:              s.opts.MaxBlanks,
			AllowDuplicateMeanings: s.opts.AllowDuplicateMeanings,
		}, s.newRNG()),
		lastActive: now,
		ctx:        sctx,
		cancel:     cancel,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		cancel()
		return nil, apperrors.InternalWrap("failed to create session", err)
	}

	s.log.Info().Str("session_id", sess.ID).Msg("Session created")
	return s.view(sess), nil
}

// Get returns the current snapshot of a session.
func (s *SessionService) Get(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// Snapshot returns the current snapshot of a session.
func (s *SessionService) Snapshot(ctx context.Context, id string) (session.Snapshot, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return v.Snapshot, nil
}

// Delete ends a session, canceling its in-flight work.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.NotFound("session")
	}
	sess.mu.Lock()
	sess.close()
	sess.mu.Unlock()

	s.log.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	return s.repo.Count()
}

func (s *SessionService) lookup(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("session")
	}
	if err != nil {
		return nil, apperrors.InternalWrap("failed to load session", err)
	}
	return sess, nil
}

// view builds a SessionView. The caller holds sess.mu.
func (s *SessionService) view(sess *Session) *SessionView {
	return &SessionView{ID: sess.ID, Snapshot: sess.machine.Snapshot()}
}

// update runs fn under the session lock, then publishes the new snapshot
// if the machine changed.
func (s *SessionService) update(ctx context.Context, id string, fn func(sess *Session) error) (*SessionView, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, apperrors.NotFound("session")
	}
	before := sess.machine.Version()
	err = fn(sess)
	sess.lastActive = s.now()
	sess.UpdatedAt = sess.lastActive
	v := s.view(sess)
	sess.mu.Unlock()

	if v.Version != before {
		s.publisher.Publish(sess.ID, v.Snapshot)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// apply runs a completion under the session lock and publishes the
// result if it changed anything. Completions for closed sessions are
// dropped.
func (s *SessionService) apply(sess *Session, fn func(m *session.Machine)) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	before := sess.machine.Version()
	fn(sess.machine)
	changed := sess.machine.Version() != before
	snap := sess.machine.Snapshot()
	sess.mu.Unlock()

	if changed {
		s.publisher.Publish(sess.ID, snap)
	}
}

// launch runs call as a gateway task bound to ctx and applies complete
// when it finishes. The returned channel closes once complete has run.
func launch[T any](s *SessionService, sess *Session, ctx context.Context, call func(ctx context.Context) (T, error), complete func(m *session.Machine, v T, err error)) <-chan struct{} {
	applied := make(chan struct{})
	task := gateway.Start(ctx, s.opts.AITimeout, call)
	go func() {
		defer close(applied)
		<-task.Done()
		res, _ := task.Result()
		if res.Err != nil {
			s.log.Warn().Err(res.Err).Str("session_id", sess.ID).Msg("Gateway call failed")
		}
		s.apply(sess, func(m *session.Machine) { complete(m, res.Value, res.Err) })
	}()
	return applied
}

// await blocks until done closes or ctx ends, then returns the latest view.
func (s *SessionService) await(ctx context.Context, id string, done <-chan struct{}) (*SessionView, error) {
	select {
	case <-done:
	case <-ctx.Done():
	}
	return s.Get(context.WithoutCancel(ctx), id)
}

// SetStory stores the draft story and level.
func (s *SessionService) SetStory(ctx context.Context, id, story, level string) (*SessionView, error) {
	lvl, err := lesson.ParseLevel(level)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.SetStory(story, lvl)
	})
}

// Generate asks the gateway for a lesson from the draft story. With wait
// the call returns after the lesson arrived or failed.
func (s *SessionService) Generate(ctx context.Context, id string, wait bool) (*SessionView, error) {
	var done <-chan struct{}
	v, err := s.update(ctx, id, func(sess *Session) error {
		story, level, err := sess.machine.BeginGenerate()
		if err != nil {
			return err
		}
		done = launch(s, sess, sess.ctx,
			func(ctx context.Context) (*lesson.Lesson, error) {
				return s.gw.GenerateLesson(ctx, story, level)
			},
			func(m *session.Machine, l *lesson.Lesson, err error) {
				m.CompleteGenerate(l, err)
			})
		return nil
	})
	if err != nil || !wait {
		return v, err
	}
	return s.await(ctx, id, done)
}

// Back leaves the active screen.
func (s *SessionService) Back(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		from, err := sess.machine.Back()
		if err != nil {
			return err
		}
		switch from {
		case session.StepRoleplay:
			sess.endRoleplay()
		case session.StepWordGame:
			sess.stopWordTimer()
		}
		return nil
	})
}

// StartPractice opens pronunciation practice.
func (s *SessionService) StartPractice(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.StartPractice()
	})
}

// SelectSentence picks the active sentence.
func (s *SessionService) SelectSentence(ctx context.Context, id string, index int) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.SelectSentence(index)
	})
}

// NextSentence advances the active sentence.
func (s *SessionService) NextSentence(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.NextSentence()
	})
}

// StartSentenceGame starts the fill-in-the-blank game.
func (s *SessionService) StartSentenceGame(ctx context.Context, id string, blanks int) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.StartSentenceGame(blanks)
	})
}

// CheckSentenceGame records answers and scores the round.
func (s *SessionService) CheckSentenceGame(ctx context.Context, id string, answers []string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		if err := sess.machine.SetGameAnswers(answers); err != nil {
			return err
		}
		_, err := sess.machine.CheckGame()
		return err
	})
}

// NextGameSentence moves the sentence game forward.
func (s *SessionService) NextGameSentence(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.NextGameSentence()
	})
}

// StartWordGame starts the vocabulary game.
func (s *SessionService) StartWordGame(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.StartWordGame()
	})
}

// AnswerWord scores a flashcard pick and schedules the move to the next
// card.
func (s *SessionService) AnswerWord(ctx context.Context, id, selected string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		_, index, err := sess.machine.AnswerWord(selected)
		if err != nil {
			return err
		}
		sess.stopWordTimer()
		sess.wordTimer = time.AfterFunc(s.opts.WordAdvanceDelay, func() {
			s.apply(sess, func(m *session.Machine) { m.AdvanceWord(index) })
		})
		return nil
	})
}

// StartRoleplay opens the roleplay screen. The partner's greeting arrives
// after the connect delay.
func (s *SessionService) StartRoleplay(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		epoch, err := sess.machine.StartRoleplay()
		if err != nil {
			return err
		}
		sess.endRoleplay()
		rctx, cancel := context.WithCancel(sess.ctx)
		sess.roleplayCancel = cancel

		story, title := s.roleplayContext(sess.machine)
		greeting := gateway.Start(rctx, s.opts.AITimeout, func(ctx context.Context) (string, error) {
			return s.partner.Reply(ctx, story, title, nil)
		})
		go s.connect(sess, rctx, epoch, greeting)
		return nil
	})
}

func (s *SessionService) connect(sess *Session, ctx context.Context, epoch int, greeting *gateway.Task[string]) {
	timer := time.NewTimer(s.opts.ConnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		greeting.Cancel()
		return
	}

	res := greeting.Wait(ctx)
	if ctx.Err() != nil {
		return
	}
	text := res.Value
	if res.Err != nil || text == "" {
		s.log.Warn().Err(res.Err).Str("session_id", sess.ID).Msg("Partner greeting failed, using default")
		text = s.opts.Greeting
	}
	s.apply(sess, func(m *session.Machine) { m.CompleteConnect(epoch, text) })
}

// roleplayContext returns the story and lesson title. The caller holds the
// session lock.
func (s *SessionService) roleplayContext(m *session.Machine) (string, string) {
	story, _ := m.Story()
	title := ""
	if l := m.Lesson(); l != nil {
		title = l.Title
	}
	return story, title
}

// SetMic turns the roleplay microphone on or off.
func (s *SessionService) SetMic(ctx context.Context, id string, on bool) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.SetMic(on)
	})
}

// SendMessage adds a typed learner line and requests the partner's reply.
// The reply can be collected with WaitReply using the returned request ID.
func (s *SessionService) SendMessage(ctx context.Context, id, text string) (string, *SessionView, error) {
	var requestID string
	v, err := s.update(ctx, id, func(sess *Session) error {
		epoch, history, err := sess.machine.AddUserMessage(text)
		if err != nil {
			return err
		}
		requestID = s.requestReply(sess, epoch, history)
		return nil
	})
	return requestID, v, err
}

// requestReply asks the partner for its next line. The caller holds the
// session lock.
func (s *SessionService) requestReply(sess *Session, epoch int, history []session.Message) string {
	requestID := "req_" + uuid.New().String()[:8]
	if sess.pending == nil {
		sess.pending = make(map[string]struct{})
	}
	sess.pending[requestID] = struct{}{}
	ctx := s.roleplayCtx(sess)
	story, title := s.roleplayContext(sess.machine)
	turns := make([]gateway.Turn, len(history))
	for i, msg := range history {
		turns[i] = gateway.Turn{FromUser: msg.Role == session.RoleUser, Text: msg.Text}
	}

	task := gateway.Start(ctx, s.opts.AITimeout, func(ctx context.Context) (string, error) {
		return s.partner.Reply(ctx, story, title, turns)
	})
	go func() {
		<-task.Done()
		res, _ := task.Result()
		reply := PartnerReply{RequestID: requestID, Text: res.Value}
		if res.Err != nil {
			reply = PartnerReply{RequestID: requestID, Error: apperrors.As(res.Err).Message}
			s.log.Warn().Err(res.Err).Str("session_id", sess.ID).Str("request_id", requestID).Msg("Partner reply failed")
			s.apply(sess, func(m *session.Machine) { m.FailPartner(epoch) })
		} else {
			s.apply(sess, func(m *session.Machine) { m.AddPartnerMessage(epoch, res.Value) })
		}

		if err := s.replies.Push(context.WithoutCancel(ctx), reply); err != nil {
			s.log.Error().Err(err).Str("request_id", requestID).Msg("Failed to queue partner reply")
		}
	}()
	return requestID
}

// roleplayCtx returns a context that ends with the current roleplay visit.
// The caller holds the session lock.
func (s *SessionService) roleplayCtx(sess *Session) context.Context {
	ctx, cancel := context.WithCancel(sess.ctx)
	prev := sess.roleplayCancel
	sess.roleplayCancel = func() {
		if prev != nil {
			prev()
		}
		cancel()
	}
	return ctx
}

// WaitReply blocks until the partner reply for requestID is available.
// Only request IDs issued to session id can be collected, and each reply
// is collected once.
func (s *SessionService) WaitReply(ctx context.Context, id, requestID string) (*PartnerReply, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, apperrors.Validation("request ID is required")
	}

	sess.mu.Lock()
	_, ok := sess.pending[requestID]
	sess.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("reply request")
	}

	reply, err := s.replies.Wait(ctx, requestID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	delete(sess.pending, requestID)
	sess.mu.Unlock()
	return reply, nil
}

// StartCapture begins an audio capture for the active screen.
func (s *SessionService) StartCapture(ctx context.Context, id string, kind session.CaptureKind) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.machine.StartCapture(kind)
	})
}

// FailCapture reports that the microphone could not be opened.
func (s *SessionService) FailCapture(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		sess.machine.FailCapture()
		return nil
	})
}

// DismissNotice clears the pending notice.
func (s *SessionService) DismissNotice(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *Session) error {
		sess.machine.DismissNotice()
		return nil
	})
}

// StopCapture ends the active capture and processes the recording: input
// recordings are transcribed into the story, practice recordings are
// evaluated and roleplay recordings become messages. Recordings shorter
// than audio.MinCaptureBytes are discarded.
func (s *SessionService) StopCapture(ctx context.Context, id string, rec gateway.Audio, wait bool) (*SessionView, error) {
	var done <-chan struct{}
	short := len(rec.Data) < audio.MinCaptureBytes
	if !short && rec.MIMEType == "" {
		return nil, apperrors.Validation("audio mime type is required")
	}
	v, err := s.update(ctx, id, func(sess *Session) error {
		kind, err := sess.machine.StopCapture()
		if err != nil {
			return err
		}
		if short {
			s.log.Debug().Str("session_id", sess.ID).Int("bytes", len(rec.Data)).Msg("Discarding short recording")
			return nil
		}

		switch kind {
		case session.CapturePractice:
			reference, index, err := sess.machine.BeginEvaluate()
			if err != nil {
				return err
			}
			done = launch(s, sess, sess.ctx,
				func(ctx context.Context) (*gateway.Evaluation, error) {
					return s.gw.EvaluatePronunciation(ctx, reference, rec)
				},
				func(m *session.Machine, ev *gateway.Evaluation, err error) {
					m.CompleteEvaluate(index, ev, err)
				})
		default:
			epoch, err := sess.machine.BeginTranscribe(kind)
			if err != nil {
				return err
			}
			ctx := sess.ctx
			if kind == session.CaptureRoleplay {
				ctx = s.roleplayCtx(sess)
			}
			done = launch(s, sess, ctx,
				func(ctx context.Context) (string, error) {
					return s.gw.TranscribeAudio(ctx, rec)
				},
				func(m *session.Machine, text string, err error) {
					if !m.CompleteTranscribe(kind, epoch, text, err) {
						return
					}
					msgs := m.State().(*session.RoleplayState).Messages
					s.requestReply(sess, epoch, append([]session.Message(nil), msgs...))
				})
		}
		return nil
	})
	if err != nil || !wait || done == nil {
		return v, err
	}
	return s.await(ctx, id, done)
}

// Sweep deletes sessions idle for longer than the idle TTL and returns how
// many were removed.
func (s *SessionService) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.opts.IdleTTL)
	removed := s.repo.DeleteWhere(ctx, func(sess *Session) bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.lastActive.Before(cutoff)
	})
	for _, sess := range removed {
		sess.mu.Lock()
		sess.close()
		sess.mu.Unlock()
	}
	if len(removed) > 0 {
		s.log.Info().Int("count", len(removed)).Msg("Swept idle sessions")
	}
	return len(removed)
}

// RunSweeper sweeps idle sessions every interval until ctx ends.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Close ends every session and cancels all in-flight work.
func (s *SessionService) Close() {
	all, _ := s.repo.GetAll(context.Background())
	for _, sess := range all {
		sess.mu.Lock()
		sess.close()
		sess.mu.Unlock()
	}
	s.cancel()
}

// Exists reports whether id names a live session.
func (s *SessionService) Exists(ctx context.Context, id string) bool {
	_, err := s.repo.GetByID(ctx, id)
	return err == nil
}
