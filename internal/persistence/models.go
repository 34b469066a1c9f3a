package persistence

import (
	"time"

	"github.com/uptrace/bun"
)

// Post statuses.
const (
	PostStatusPublic  = "PUBLIC"
	PostStatusPrivate = "PRIVATE"
	PostStatusNotice  = "NOTICE"
)

// Member is the acting user. Only the columns the core reads are mapped.
type Member struct {
	bun.BaseModel `bun:"table:tbl_members,alias:m"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	Nickname   string    `bun:"nickname,notnull" json:"nickname"`
	Disabled   bool      `bun:"disabled,notnull" json:"-"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Group is a community group. Groups can be liked.
type Group struct {
	bun.BaseModel `bun:"table:tbl_groups,alias:g"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	Name       string    `bun:"name,notnull" json:"name"`
	LikeCount  int64     `bun:"like_count,notnull" json:"likeCount"`
	Disabled   bool      `bun:"disabled,notnull" json:"-"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Post carries the view counters reconciled from the cache and the like
// counter maintained by toggles.
type Post struct {
	bun.BaseModel `bun:"table:tbl_posts,alias:p"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	GroupID        int64     `bun:"group_id,notnull" json:"groupId"`
	MemberID       int64     `bun:"member_id,notnull" json:"memberId"`
	Nickname       string    `bun:"nickname,notnull" json:"nickname"`
	Title          string    `bun:"title,notnull" json:"title"`
	Content        string    `bun:"content,notnull" json:"content"`
	PostStatus     string    `bun:"post_status,notnull" json:"postStatus"`
	TodayViewCount int64     `bun:"today_view_count,notnull" json:"todayViewCount"`
	TotalViewCount int64     `bun:"total_view_count,notnull" json:"totalViewCount"`
	LikeCount      int64     `bun:"like_count,notnull" json:"likeCount"`
	Disabled       bool      `bun:"disabled,notnull" json:"-"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt     time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Attachment is a file attached to a post. StoreFilePath addresses the blob
// in file storage.
type Attachment struct {
	bun.BaseModel `bun:"table:tbl_post_attachments,alias:a"`

	ID               int64     `bun:"id,pk,autoincrement" json:"id"`
	PostID           int64     `bun:"post_id,notnull" json:"postId"`
	OriginalFileName string    `bun:"original_file_name,notnull" json:"originalFileName"`
	StoreFileName    string    `bun:"store_file_name,notnull" json:"storeFileName"`
	StoreFilePath    string    `bun:"store_file_path,notnull" json:"-"`
	FileSize         int64     `bun:"file_size,notnull" json:"fileSize"`
	ContentType      string    `bun:"content_type,notnull" json:"contentType"`
	Disabled         bool      `bun:"disabled,notnull" json:"-"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt       time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Comment belongs to a post and can be liked.
type Comment struct {
	bun.BaseModel `bun:"table:tbl_comments,alias:c"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	PostID     int64     `bun:"post_id,notnull" json:"postId"`
	MemberID   int64     `bun:"member_id,notnull" json:"memberId"`
	Content    string    `bun:"content,notnull" json:"content"`
	LikeCount  int64     `bun:"like_count,notnull" json:"likeCount"`
	Disabled   bool      `bun:"disabled,notnull" json:"-"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Like associates a member with a liked subject. At most one row exists per
// (SubjectType, SubjectID, MemberID); unliking disables it.
type Like struct {
	bun.BaseModel `bun:"table:tbl_likes,alias:l"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	SubjectType string    `bun:"subject_type,notnull" json:"subjectType"`
	SubjectID   int64     `bun:"subject_id,notnull" json:"subjectId"`
	MemberID    int64     `bun:"member_id,notnull" json:"memberId"`
	Disabled    bool      `bun:"disabled,notnull" json:"disabled"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
	ModifiedAt  time.Time `bun:"modified_at,notnull" json:"modifiedAt"`
}

// Models lists every table CreateSchema creates, parents first.
func Models() []any {
	return []any{
		(*Member)(nil),
		(*Group)(nil),
		(*Post)(nil),
		(*Attachment)(nil),
		(*Comment)(nil),
		(*Like)(nil),
	}
}
