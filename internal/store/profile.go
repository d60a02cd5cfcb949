package store

import (
	"context"
	"slices"

	"github.com/tgienger/apolo/internal/models"
	"github.com/tgienger/apolo/internal/remote"
)

const (
	fieldName   = "name"
	fieldAvatar = "avatar_url"
)

// UserPatch holds the profile fields to change; nil fields are kept
type UserPatch struct {
	Name      *string
	AvatarURL *string
}

// UpdateCurrentUser edits the acting user's profile. Edited fields are not
// overwritten by loads until the write lands.
func (m *Manager) UpdateCurrentUser(patch UserPatch) *Commit {
	m.mu.Lock()
	if m.user == nil || (patch.Name == nil && patch.AvatarURL == nil) {
		m.mu.Unlock()
		return skipped()
	}
	u := *m.user
	var fields []string
	if patch.Name != nil {
		u.Name = *patch.Name
		fields = append(fields, fieldName)
	}
	if patch.AvatarURL != nil {
		u.AvatarURL = *patch.AvatarURL
		fields = append(fields, fieldAvatar)
	}
	for _, f := range fields {
		m.dirty[f]++
	}
	m.user = &u
	if i := slices.IndexFunc(m.users, func(x models.User) bool { return x.ID == u.ID }); i >= 0 {
		users := slices.Clone(m.users)
		users[i] = u
		m.users = users
	}
	m.mu.Unlock()
	m.notify()

	return m.write("update_profile", func(ctx context.Context) error {
		_, err := m.remote.Upsert(ctx, remote.Profiles, remote.Row{
			"id":         u.ID,
			"email":      u.Email,
			"full_name":  u.Name,
			"avatar_url": u.AvatarURL,
			"updated_at": remote.Millis(m.now()),
		})
		if err != nil {
			return err
		}
		m.mu.Lock()
		if m.user != nil && m.user.ID == u.ID {
			for _, f := range fields {
				if m.dirty[f] > 0 {
					m.dirty[f]--
				}
			}
		}
		m.mu.Unlock()
		return nil
	})
}
