package extract

import (
	"context"
	"fmt"

	"moodle-harvest/internal/assert"
	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"
)

const (
	report_forum_discussions = "forum.discussions"
	report_forum_posts       = "forum.posts"
)

// ForumAPI fetches the children of a forum.
type ForumAPI interface {
	ForumDiscussions(ctx context.Context, forumID int64) ([]core.Discussion, error)
	DiscussionPosts(ctx context.Context, discussionID int64) ([]core.Post, error)
}

// DiscussionFields are the columns kept of a forum discussion.
type DiscussionFields struct {
	ID           int64
	Discussion   int64
	Name         string
	Subject      string
	Message      string
	UserFullName string
	Created      int64
	Modified     int64
	TimeModified int64
	NumReplies   int64
	Pinned       bool
	Locked       bool
}

// PostFields are the columns kept of a discussion post.
type PostFields struct {
	ID          int64
	ParentID    int64
	Subject     string
	Message     string
	Author      string
	Created     int64
	Modified    int64
	Attachments []string
}

// ForumRecord is one row of the forum table. A forum without discussions
// and a discussion without posts still get a row, with nil children.
type ForumRecord struct {
	Module     ModuleRecord
	Discussion *DiscussionFields
	Post       *PostFields
}

var discussionColumns = []string{
	"forum_discussion_id",
	"forum_discussion_discussion",
	"forum_discussion_name",
	"forum_discussion_subject",
	"forum_discussion_message",
	"forum_discussion_userfullname",
	"forum_discussion_created",
	"forum_discussion_modified",
	"forum_discussion_timemodified",
	"forum_discussion_numreplies",
	"forum_discussion_pinned",
	"forum_discussion_locked",
}

var postColumns = []string{
	"forum_post_id",
	"forum_post_parent",
	"forum_post_subject",
	"forum_post_message",
	"forum_post_author",
	"forum_post_created",
	"forum_post_modified",
	"forum_post_attachments",
}

func ForumColumns() []string {
	cols := ModuleColumns(Forum)
	cols = append(cols, discussionColumns...)
	return append(cols, postColumns...)
}

func (r ForumRecord) Columns() []string {
	return ForumColumns()
}

func (r ForumRecord) Values() []string {
	values := r.Module.Values()
	if d := r.Discussion; d != nil {
		values = append(values,
			formatInt(d.ID),
			formatInt(d.Discussion),
			d.Name,
			d.Subject,
			d.Message,
			d.UserFullName,
			formatInt(d.Created),
			formatInt(d.Modified),
			formatInt(d.TimeModified),
			formatInt(d.NumReplies),
			formatBool(d.Pinned),
			formatBool(d.Locked),
		)
	} else {
		values = append(values, make([]string, len(discussionColumns))...)
	}
	if p := r.Post; p != nil {
		values = append(values,
			formatInt(p.ID),
			formatInt(p.ParentID),
			p.Subject,
			p.Message,
			p.Author,
			formatInt(p.Created),
			formatInt(p.Modified),
			formatJSON(p.Attachments),
		)
	} else {
		values = append(values, make([]string, len(postColumns))...)
	}
	return values
}

func (r *ForumRecord) MapStrings(fn func(string) string) {
	r.Module.MapStrings(fn)
	if d := r.Discussion; d != nil {
		d.Name = fn(d.Name)
		d.Subject = fn(d.Subject)
		d.Message = fn(d.Message)
		d.UserFullName = fn(d.UserFullName)
	}
	if p := r.Post; p != nil {
		p.Subject = fn(p.Subject)
		p.Message = fn(p.Message)
		p.Author = fn(p.Author)
		mapSlice(p.Attachments, fn)
	}
}

func discussionFields(d core.Discussion) *DiscussionFields {
	return &DiscussionFields{
		ID:           d.ID,
		Discussion:   d.Discussion,
		Name:         d.Name,
		Subject:      d.Subject,
		Message:      d.Message,
		UserFullName: d.UserFullName,
		Created:      d.Created,
		Modified:     d.Modified,
		TimeModified: d.TimeModified,
		NumReplies:   d.NumReplies,
		Pinned:       d.Pinned,
		Locked:       d.Locked,
	}
}

func postFields(p core.Post) *PostFields {
	attachments := make([]string, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		attachments = append(attachments, a.Filename)
	}
	return &PostFields{
		ID:          p.ID,
		ParentID:    p.ParentID,
		Subject:     p.Subject,
		Message:     p.Message,
		Author:      p.Author.FullName,
		Created:     p.TimeCreated,
		Modified:    p.TimeModified,
		Attachments: attachments,
	}
}

// ForumAdapter fans every forum module out into its discussions and posts.
type ForumAdapter struct {
	helper Helper
	api    ForumAPI
	tel    telemetry.API
}

func NewForumAdapter(api ForumAPI, fetcher Fetcher, tel telemetry.API) ForumAdapter {
	assert.NotNil(api)
	return ForumAdapter{
		helper: NewHelper(Forum, fetcher, tel),
		api:    api,
		tel:    telemetry.NewScopedAPI(Forum.Name, tel),
	}
}

// Records returns one row per post, discussions without posts and forums
// without discussions yield a single placeholder row. A failed call is
// reported and treated as having no children.
func (a ForumAdapter) Records(ctx context.Context, cc CourseContext) []ForumRecord {
	var records []ForumRecord
	for _, forum := range a.helper.Modules(ctx, cc) {
		discussions, err := a.api.ForumDiscussions(ctx, forum.Module.ID)
		if err != nil {
			a.tel.ReportBroken(
				report_forum_discussions,
				fmt.Errorf("get discussions: %w", err),
				forum.Module.ID,
				forum.Module.CMID,
			)
		}
		if len(discussions) == 0 {
			records = append(records, ForumRecord{Module: forum})
			continue
		}

		for _, d := range discussions {
			records = append(records, a.discussionRecords(ctx, forum, d)...)
		}
	}

	for i := range records {
		cleaner.CleanEncodingArtifacts(cleaner.CleanEscapedSlashes(&records[i]))
	}
	return records
}

func (a ForumAdapter) discussionRecords(ctx context.Context, forum ModuleRecord, d core.Discussion) []ForumRecord {
	placeholder := []ForumRecord{{Module: forum, Discussion: discussionFields(d)}}
	if d.Discussion <= 0 {
		return placeholder
	}

	posts, err := a.api.DiscussionPosts(ctx, d.Discussion)
	if err != nil {
		a.tel.ReportBroken(
			report_forum_posts,
			fmt.Errorf("get posts: %w", err),
			forum.Module.ID,
			d.Discussion,
		)
	}
	if len(posts) == 0 {
		return placeholder
	}

	records := make([]ForumRecord, 0, len(posts))
	for _, p := range posts {
		records = append(records, ForumRecord{
			Module:     forum,
			Discussion: discussionFields(d),
			Post:       postFields(p),
		})
	}
	return records
}
