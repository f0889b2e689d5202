package connect

import (
	"time"

	"github.com/osa030/ourtube/internal/app/audit"
	"github.com/osa030/ourtube/internal/app/notification"
	"github.com/osa030/ourtube/internal/app/session"
	"github.com/osa030/ourtube/internal/domain/listener"
	"github.com/osa030/ourtube/internal/domain/playlist"
	"github.com/osa030/ourtube/internal/domain/track"
)

// Procedure names.
const (
	QueueServiceName = "ourtube.v1.QueueService"
	AdminServiceName = "ourtube.v1.AdminService"

	EnqueueProcedure      = "/" + QueueServiceName + "/Enqueue"
	SkipProcedure         = "/" + QueueServiceName + "/Skip"
	SetVolumeProcedure    = "/" + QueueServiceName + "/SetVolume"
	ResolveTrackProcedure = "/" + QueueServiceName + "/ResolveTrack"
	GetQueueProcedure     = "/" + QueueServiceName + "/GetQueue"
	SubscribeProcedure    = "/" + QueueServiceName + "/Subscribe"

	OpenTenantProcedure    = "/" + AdminServiceName + "/OpenTenant"
	CloseTenantProcedure   = "/" + AdminServiceName + "/CloseTenant"
	SelectChannelProcedure = "/" + AdminServiceName + "/SelectChannel"
	JoinProcedure          = "/" + AdminServiceName + "/Join"
	LeaveProcedure         = "/" + AdminServiceName + "/Leave"
	GetStatusProcedure     = "/" + AdminServiceName + "/GetStatus"
	ListTenantsProcedure   = "/" + AdminServiceName + "/ListTenants"
	ListAuditProcedure     = "/" + AdminServiceName + "/ListAudit"
)

type EnqueueRequest struct {
	Tenant  string `json:"tenant"`
	User    string `json:"user"`
	Locator string `json:"locator"`
}

type EnqueueResponse struct {
	Success bool                `json:"success"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Entry   *notification.Entry `json:"entry,omitempty"`
}

type SkipRequest struct {
	Tenant string `json:"tenant"`
	User   string `json:"user"`
}

// ActionResponse is the reply of actions that only succeed or fail.
type ActionResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type SetVolumeRequest struct {
	Tenant string  `json:"tenant"`
	User   string  `json:"user"`
	Volume float64 `json:"volume"`
}

type SetVolumeResponse struct {
	Success bool    `json:"success"`
	Changed bool    `json:"changed"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message"`
	Volume  float64 `json:"volume"`
}

type ResolveTrackRequest struct {
	Locator string `json:"locator"`
}

type ResolveTrackResponse struct {
	Track Track `json:"track"`
}

// Track is the wire form of resolved track metadata.
type Track struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Artists      []string `json:"artists,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
	Locator      string   `json:"locator"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
}

func newTrack(t *track.Track) Track {
	return Track{
		ID:           t.ID,
		Name:         t.Name,
		Artists:      t.Artists,
		DurationMs:   t.DurationMs(),
		Locator:      t.Locator,
		ThumbnailURL: t.Thumbnail.URL,
	}
}

type GetQueueRequest struct {
	Tenant string `json:"tenant"`
}

type GetQueueResponse struct {
	Playing *notification.Entry  `json:"playing,omitempty"`
	Queued  []notification.Entry `json:"queued"`
}

func newQueueResponse(pl playlist.Playlist) *GetQueueResponse {
	resp := &GetQueueResponse{
		Playing: notification.NewEntry(pl.Playing),
		Queued:  make([]notification.Entry, 0, len(pl.Queued)),
	}
	for i := range pl.Queued {
		resp.Queued = append(resp.Queued, *notification.NewEntry(&pl.Queued[i]))
	}
	return resp
}

type SubscribeRequest struct {
	Tenant string `json:"tenant"`
}

type OpenTenantRequest struct {
	Tenant  string `json:"tenant"`
	Channel string `json:"channel,omitempty"`
}

type CloseTenantRequest struct {
	Tenant string `json:"tenant"`
}

type SelectChannelRequest struct {
	Tenant  string `json:"tenant"`
	User    string `json:"user"`
	Channel string `json:"channel"`
}

type SelectChannelResponse struct {
	Changed bool `json:"changed"`
}

type JoinRequest struct {
	Tenant  string `json:"tenant"`
	Channel string `json:"channel"`
	Member  string `json:"member"`
	Name    string `json:"name,omitempty"`
}

type JoinResponse struct {
	Present bool `json:"present"`
}

type LeaveRequest struct {
	Tenant string `json:"tenant"`
	Member string `json:"member"`
}

type GetStatusRequest struct {
	Tenant string `json:"tenant"`
}

// QueueEntry is a queued track with the presence of its submitter.
type QueueEntry struct {
	notification.Entry
	Present bool `json:"present"`
}

// Member is the wire form of a connected member.
type Member struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ChannelID     string    `json:"channel_id"`
	JoinedAt      time.Time `json:"joined_at"`
	TotalRequests int       `json:"total_requests"`
}

func newMember(s listener.Session) Member {
	return Member{
		ID:            s.ID,
		Name:          s.Name(),
		ChannelID:     s.ChannelID,
		JoinedAt:      s.JoinedAt,
		TotalRequests: s.TotalRequests,
	}
}

type GetStatusResponse struct {
	Tenant      string              `json:"tenant"`
	ChannelID   string              `json:"channel_id,omitempty"`
	State       string              `json:"state"`
	Playing     *notification.Entry `json:"playing,omitempty"`
	Percent     float64             `json:"percent"`
	Played      int64               `json:"played_frames"`
	Expected    int64               `json:"expected_frames"`
	Volume      float64             `json:"volume"`
	Queue       []QueueEntry        `json:"queue"`
	Pending     map[string]int      `json:"pending,omitempty"`
	Waiting     []string            `json:"waiting,omitempty"`
	Members     []Member            `json:"members"`
	Subscribers int                 `json:"subscribers"`
	OpenedAt    time.Time           `json:"opened_at"`
}

func newStatusResponse(st *session.Status) *GetStatusResponse {
	resp := &GetStatusResponse{
		Tenant:      st.Tenant,
		ChannelID:   st.ChannelID,
		State:       st.State.String(),
		Playing:     notification.NewEntry(st.Playing),
		Percent:     st.Percent,
		Played:      st.Played,
		Expected:    st.Expected,
		Volume:      st.Volume,
		Queue:       make([]QueueEntry, 0, len(st.Queue)),
		Pending:     st.Pending,
		Waiting:     st.Waiting,
		Members:     make([]Member, 0, len(st.Members)),
		Subscribers: st.Subscribers,
		OpenedAt:    st.OpenedAt,
	}
	for i := range st.Queue {
		resp.Queue = append(resp.Queue, QueueEntry{
			Entry:   *notification.NewEntry(&st.Queue[i].Track),
			Present: st.Queue[i].Present,
		})
	}
	for _, m := range st.Members {
		resp.Members = append(resp.Members, newMember(m))
	}
	return resp
}

type ListTenantsRequest struct{}

// TenantInfo is the summary of an open tenant.
type TenantInfo struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id,omitempty"`
	State     string    `json:"state"`
	Playing   string    `json:"playing,omitempty"`
	Queued    int       `json:"queued"`
	Members   int       `json:"members"`
	OpenedAt  time.Time `json:"opened_at"`
}

type ListTenantsResponse struct {
	Tenants []TenantInfo `json:"tenants"`
}

type ListAuditRequest struct {
	Limit int `json:"limit"`
}

// AuditEntry is the wire form of an audit record.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	Tenant string    `json:"tenant"`
	UserID string    `json:"user_id"`
	Action string    `json:"action"`
	State  string    `json:"state"`
}

func newAuditEntry(e audit.Entry) AuditEntry {
	return AuditEntry{
		Time:   e.Time,
		Tenant: e.Tenant,
		UserID: e.UserID,
		Action: e.Action,
		State:  string(e.State),
	}
}

type ListAuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// Empty is the reply of admin actions without a result.
type Empty struct{}
