package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
)

// Publisher fans entries out to live subscribers.
type Publisher interface {
	Publish(e notification.Entry)
}

// Poster delivers a rendered message to an external channel.
type Poster interface {
	Post(ctx context.Context, text string) error
}

type Service struct {
	repo  notification.Repository
	slack Poster
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithSlack(p Poster) Option { return func(s *Service) { s.slack = p } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(f func() time.Time) Option { return func(s *Service) { s.now = f } }

func NewService(repo notification.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record writes one transition entry through repo, which may be bound to
// the caller's transaction. The entry is not published; call Publish after
// the transaction commits.
func (s *Service) Record(ctx context.Context, repo notification.Repository, d *decision.Decision, ev decision.Event, status notification.Status, detail string) (*notification.Entry, error) {
	e := notification.FromDecision(d, notification.Channel(ev), status, TransitionMessage(d, ev, detail))
	if err := repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("record %s notification: %w", ev, err)
	}
	return e, nil
}

// PostCommit writes the email and slack entries for a committed decision.
// A failed slack delivery is stored with status failed, not returned.
func (s *Service) PostCommit(ctx context.Context, d *decision.Decision) ([]*notification.Entry, error) {
	now := s.now()
	email := notification.FromDecision(d, notification.ChannelEmail, notification.StatusSent, EmailMessage(d, now))

	text := SlackMessage(d, now)
	slackStatus := notification.StatusSent
	if s.slack != nil {
		if err := s.slack.Post(ctx, text); err != nil {
			s.log.Warn("notification: slack delivery failed", "erp_requisition_id", d.ErpRequisitionID, "err", err)
			slackStatus = notification.StatusFailed
		}
	}
	slack := notification.FromDecision(d, notification.ChannelSlack, slackStatus, text)

	out := make([]*notification.Entry, 0, 2)
	for _, e := range []*notification.Entry{email, slack} {
		if err := s.repo.Create(ctx, e); err != nil {
			return out, fmt.Errorf("record %s notification: %w", e.Channel, err)
		}
		out = append(out, e)
	}
	s.Publish(out...)
	return out, nil
}

func (s *Service) Publish(entries ...*notification.Entry) {
	if s.pub == nil {
		return
	}
	for _, e := range entries {
		if e != nil {
			s.pub.Publish(*e)
		}
	}
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, f notification.Filter) ([]notification.Entry, error) {
	if f.Channel != "" && !f.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", decision.ErrValidation, f.Channel)
	}
	return s.repo.List(ctx, f)
}
