package services

import (
	"client-registry/internal/models"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DedupWindow suppresses a repeat of an unread (category, message) pair
const DedupWindow = 24 * time.Hour

// Dispatcher receives every event admitted to the queue
type Dispatcher interface {
	Dispatch(event models.NotificationEvent)
}

// Dispatchers forwards each event to every dispatcher in order
type Dispatchers []Dispatcher

// Dispatch implements Dispatcher
func (d Dispatchers) Dispatch(event models.NotificationEvent) {
	for _, next := range d {
		next.Dispatch(event)
	}
}

// NotificationService keeps the in-memory queue of notification events.
// It is shared by the scheduler goroutine and API handlers.
type NotificationService struct {
	mu         sync.Mutex
	events     []*models.NotificationEvent
	dispatcher Dispatcher
	now        func() time.Time
	log        *zap.Logger
}

// NewNotificationService creates an empty queue. dispatcher may be nil.
func NewNotificationService(log *zap.Logger, dispatcher Dispatcher, now func() time.Time) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		dispatcher: dispatcher,
		now:        now,
		log:        log.With(zap.String("component", "notifications")),
	}
}

// Add queues a new event unless an unread event with the same category and
// message was created within DedupWindow. The second return value reports
// whether a new event was created.
func (s *NotificationService) Add(category models.Category, severity models.Severity, message string, clientID uint) (models.NotificationEvent, bool) {
	s.mu.Lock()
	now := s.now()
	for _, e := range s.events {
		if !e.Read && e.Category == category && e.Message == message && now.Sub(e.Timestamp) < DedupWindow {
			existing := *e
			s.mu.Unlock()
			return existing, false
		}
	}

	event := &models.NotificationEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Category:  category,
		Message:   message,
		Severity:  severity,
		ClientID:  clientID,
	}
	s.events = append(s.events, event)
	added := *event
	s.mu.Unlock()

	s.log.Debug("Notification queued",
		zap.String("category", string(category)),
		zap.String("severity", string(severity)),
	)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(added)
	}
	return added, true
}

// GetNotifications returns events ordered by severity, then newest first
func (s *NotificationService) GetNotifications(unreadOnly bool) []models.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.NotificationEvent, 0, len(s.events))
	for _, e := range s.events {
		if unreadOnly && e.Read {
			continue
		}
		out = append(out, *e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// UnreadCount returns the number of unread events
func (s *NotificationService) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if !e.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one event as read
func (s *NotificationService) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID == id {
			e.Read = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllRead flags every event as read and returns how many changed
func (s *NotificationService) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if !e.Read {
			e.Read = true
			n++
		}
	}
	return n
}

// ClearOlderThan drops read events older than days. Unread events are kept
// regardless of age.
func (s *NotificationService) ClearOlderThan(days int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if e.Read && e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = nil
	}
	s.events = kept
	return removed
}
