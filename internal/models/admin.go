package models

import "time"

// Audit actions written to the admin log.
const (
	ActionPostDeleted          = "post_deleted"
	ActionPostDeletedPermanent = "post_deleted_permanent"
	ActionPostEdited           = "post_edited"
	ActionBioUpdated           = "bio_updated"
	ActionAvatarUpdated        = "avatar_updated"
	ActionInviteCreated        = "invite_code_created"
	ActionInviteCancelled      = "invite_code_cancelled"
	ActionUserBanned           = "user_banned"
	ActionUserUnbanned         = "user_unbanned"
	ActionUserDeleted          = "user_deleted"
	ActionAdminPromoted        = "admin_promoted"
	ActionLogsCleared          = "logs_cleared"
)

type AdminLog struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	User      string         `json:"user"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Stats struct {
	TotalUsers        int `json:"totalUsers"`
	TotalPosts        int `json:"totalPosts"`
	ActiveInviteCodes int `json:"activeInviteCodes"`
	BannedUsers       int `json:"bannedUsers"`
}

type Media struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"-"`
	URL         string    `json:"url"`
	Owner       string    `json:"owner"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
