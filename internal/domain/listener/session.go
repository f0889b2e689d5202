// Package listener provides the listener Session domain entity: a member
// present in a tenant's voice channel.
package listener

import "time"

// Session represents a member's presence in one channel of a tenant.
type Session struct {
	ID            string     // Member ID, doubles as submitter ID
	DisplayName   string     // Display name
	Tenant        string     // Tenant ID
	ChannelID     string     // Channel the member is connected to
	JoinedAt      time.Time  // Join time
	TotalRequests int        // Total request count while present
	LastRequestAt *time.Time // Last request time
}

// NewSession creates a new listener session.
func NewSession(id, displayName, tenant, channelID string) *Session {
	return &Session{
		ID:          id,
		DisplayName: displayName,
		Tenant:      tenant,
		ChannelID:   channelID,
		JoinedAt:    time.Now(),
	}
}

// RecordRequest counts a request made by the member.
func (s *Session) RecordRequest() {
	s.TotalRequests++
	now := time.Now()
	s.LastRequestAt = &now
}

// Name returns the display name, falling back to the ID.
func (s *Session) Name() string {
	if s.DisplayName == "" {
		return s.ID
	}
	return s.DisplayName
}
