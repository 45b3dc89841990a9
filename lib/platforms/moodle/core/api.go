package core

import (
	"context"
)

const (
	FnGetCourses          = "core_course_get_courses"
	FnGetContents         = "core_course_get_contents"
	FnGetCourseBlocks     = "core_block_get_course_blocks"
	FnGetResources        = "mod_resource_get_resources_by_courses"
	FnGetForumDiscussions = "mod_forum_get_forum_discussions"
	FnGetDiscussionPosts  = "mod_forum_get_discussion_posts"
)

// Courses lists every course visible to the authenticated user.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	res, err := c.Call(ctx, FnGetCourses, nil)
	if err != nil {
		return nil, err
	}

	var courses []Course
	err = res.Decode(FnGetCourses, &courses)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	err = res.Decode(FnGetCourses, &raw)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if i < len(raw) {
			courses[i].Raw = raw[i]
		}
	}
	return courses, nil
}

// CourseContents lists the sections of a course with their modules, every
// module is stamped with the id of its section.
func (c *Client) CourseContents(ctx context.Context, courseID int64) ([]Section, error) {
	res, err := c.Call(ctx, FnGetContents, map[string]any{"courseid": courseID})
	if err != nil {
		return nil, err
	}
	var sections []Section
	err = res.Decode(FnGetContents, &sections)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		for j := range sections[i].Modules {
			sections[i].Modules[j].SectionID = sections[i].ID
		}
	}
	return sections, nil
}

func (c *Client) CourseBlocks(ctx context.Context, courseID int64) ([]Block, error) {
	res, err := c.Call(ctx, FnGetCourseBlocks, map[string]any{
		"courseid":       courseID,
		"returncontents": true,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Blocks []Block `json:"blocks"`
	}
	err = res.Decode(FnGetCourseBlocks, &payload)
	return payload.Blocks, err
}

func (c *Client) Resources(ctx context.Context, courseID int64) ([]Resource, error) {
	res, err := c.Call(ctx, FnGetResources, map[string]any{
		"courseids": []int64{courseID},
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Resources []Resource `json:"resources"`
	}
	err = res.Decode(FnGetResources, &payload)
	return payload.Resources, err
}

func (c *Client) ForumDiscussions(ctx context.Context, forumID int64) ([]Discussion, error) {
	res, err := c.Call(ctx, FnGetForumDiscussions, map[string]any{"forumid": forumID})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Discussions []Discussion `json:"discussions"`
	}
	err = res.Decode(FnGetForumDiscussions, &payload)
	return payload.Discussions, err
}

func (c *Client) DiscussionPosts(ctx context.Context, discussionID int64) ([]Post, error) {
	res, err := c.Call(ctx, FnGetDiscussionPosts, map[string]any{"discussionid": discussionID})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Posts []Post `json:"posts"`
	}
	err = res.Decode(FnGetDiscussionPosts, &payload)
	return payload.Posts, err
}
