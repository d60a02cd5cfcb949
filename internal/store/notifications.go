package store

import (
	"context"
	"slices"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
)

const notificationLimit = 20

// Notifications returns the user's notifications, newest first
func (m *Manager) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.notifications)
}

// UnreadCount returns how many notifications are unread
func (m *Manager) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, x := range m.notifications {
		if !x.Read {
			n++
		}
	}
	return n
}

// MarkNotificationRead marks one notification read
func (m *Manager) MarkNotificationRead(id string) *Commit {
	m.mu.Lock()
	i := slices.IndexFunc(m.notifications, func(n models.Notification) bool { return n.ID == id })
	if i < 0 || m.notifications[i].Read {
		m.mu.Unlock()
		return skipped()
	}
	list := slices.Clone(m.notifications)
	list[i].Read = true
	m.notifications = list
	m.mu.Unlock()
	m.notify()

	return m.write("mark_notification_read", func(ctx context.Context) error {
		return m.remote.Update(ctx, remote.Notifications, remote.Where("id", id), remote.Row{"is_read": true})
	})
}

// startFeed loads recent notifications for userID and follows new ones.
// One feed runs per identity; it is stopped by stopFeed.
func (m *Manager) startFeed(gen uint64, userID string) {
	m.mu.Lock()
	if gen != m.generation || m.feedCancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.feedCancel = cancel
	m.mu.Unlock()

	// Subscribe before the initial fetch so nothing inserted in between is lost
	ch, err := m.remote.Subscribe(ctx, remote.Notifications, remote.Where("user_id", userID))
	if err != nil {
		m.logger.Warn("notification feed unavailable", "error", err)
	}

	rows, err := m.remote.Select(ctx, remote.Notifications, remote.Query{
		Filter: remote.Where("user_id", userID),
		Order:  []remote.Order{{Column: "created_at", Desc: true}},
		Limit:  notificationLimit,
	})
	if err != nil {
		m.logger.Warn("notifications fetch failed", "error", err)
	} else {
		list := make([]models.Notification, len(rows))
		for i, r := range rows {
			list[i] = notificationFromRow(r)
		}
		m.mu.Lock()
		if m.owns(userID) {
			m.notifications = mergeNotifications(list, m.notifications)
		}
		m.mu.Unlock()
		m.notify()
	}

	if ch == nil {
		return
	}
	go func() {
		for row := range ch {
			n := notificationFromRow(row)
			m.mu.Lock()
			if !m.owns(userID) {
				m.mu.Unlock()
				continue
			}
			m.notifications = mergeNotifications([]models.Notification{n}, m.notifications)
			m.mu.Unlock()
			m.logger.Debug("notification received", "id", n.ID)
			m.notify()
		}
	}()
}

// stopFeed cancels the notification feed. Callers must hold m.mu.
func (m *Manager) stopFeed() {
	if m.feedCancel != nil {
		m.feedCancel()
		m.feedCancel = nil
	}
}

// owns reports whether userID is still the acting user. Callers must hold m.mu.
func (m *Manager) owns(userID string) bool {
	return m.user != nil && m.user.ID == userID
}

// mergeNotifications puts fresh ahead of existing, dropping duplicates by id
func mergeNotifications(fresh, existing []models.Notification) []models.Notification {
	out := make([]models.Notification, 0, len(fresh)+len(existing))
	seen := make(map[string]bool, len(fresh)+len(existing))
	for _, list := range [][]models.Notification{fresh, existing} {
		for _, n := range list {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}
