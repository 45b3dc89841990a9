package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Flag decodes the 0/1 integers (and sometimes booleans or numeric strings)
// moodle uses for visibility flags.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`:
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}

	unquoted := string(bytes.Trim(data, `"`))
	n, err := strconv.ParseFloat(unquoted, 64)
	if err != nil {
		return fmt.Errorf("invalid flag %s", data)
	}
	*f = n != 0
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

type Course struct {
	ID         int64  `json:"id"`
	ShortName  string `json:"shortname"`
	FullName   string `json:"fullname"`
	IDNumber   string `json:"idnumber"`
	CategoryID int64  `json:"categoryid"`
	Summary    string `json:"summary"`
	Format     string `json:"format"`
	Visible    Flag   `json:"visible"`
	StartDate  int64  `json:"startdate"`
	EndDate    int64  `json:"enddate"`

	// Raw is the course exactly as the web service returned it.
	Raw map[string]any `json:"-"`
}

type Section struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Visible       Flag     `json:"visible"`
	Summary       string   `json:"summary"`
	SummaryFormat int      `json:"summaryformat"`
	Section       int      `json:"section"`
	UserVisible   bool     `json:"uservisible"`
	Modules       []Module `json:"modules"`
}

type Tag struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	RawName string `json:"rawname"`
}

// Content is one entry of a module's contents, a file, a url or an inline
// content blob (the table of contents of a book for instance).
type Content struct {
	Type         string `json:"type"`
	Filename     string `json:"filename"`
	Filepath     string `json:"filepath"`
	Filesize     int64  `json:"filesize"`
	FileURL      string `json:"fileurl"`
	Content      string `json:"content"`
	TimeCreated  int64  `json:"timecreated"`
	TimeModified int64  `json:"timemodified"`
	SortOrder    int    `json:"sortorder"`
	Mimetype     string `json:"mimetype"`
	Author       string `json:"author"`
	License      string `json:"license"`
	Tags         []Tag  `json:"tags"`
}

// Module is a course module (activity), ID is its cmid and Instance the id
// of the activity inside its own plugin tables.
type Module struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Instance    int64     `json:"instance"`
	ContextID   int64     `json:"contextid"`
	Description string    `json:"description"`
	Visible     Flag      `json:"visible"`
	UserVisible bool      `json:"uservisible"`
	ModName     string    `json:"modname"`
	Contents    []Content `json:"contents"`

	// SectionID is the id of the section the module was listed under.
	SectionID int64 `json:"section_id"`
}

type BlockConfig struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type Block struct {
	InstanceID int64         `json:"instanceid"`
	Name       string        `json:"name"`
	Region     string        `json:"region"`
	PositionID int64         `json:"positionid"`
	Weight     int           `json:"weight"`
	Visible    Flag          `json:"visible"`
	Configs    []BlockConfig `json:"configs"`
}

// Config returns the raw value of a block config entry.
func (b Block) Config(name string) (string, bool) {
	for _, c := range b.Configs {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

type ResourceFile struct {
	Filename     string `json:"filename"`
	Filepath     string `json:"filepath"`
	Filesize     int64  `json:"filesize"`
	FileURL      string `json:"fileurl"`
	TimeModified int64  `json:"timemodified"`
	Mimetype     string `json:"mimetype"`
}

type Resource struct {
	ID           int64          `json:"id"`
	CourseModule int64          `json:"coursemodule"`
	Course       int64          `json:"course"`
	Name         string         `json:"name"`
	Intro        string         `json:"intro"`
	Revision     int64          `json:"revision"`
	Visible      Flag           `json:"visible"`
	TimeModified int64          `json:"timemodified"`
	ContentFiles []ResourceFile `json:"contentfiles"`
}

type Discussion struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Discussion   int64  `json:"discussion"`
	Subject      string `json:"subject"`
	Message      string `json:"message"`
	UserFullName string `json:"userfullname"`
	Created      int64  `json:"created"`
	Modified     int64  `json:"modified"`
	TimeModified int64  `json:"timemodified"`
	NumReplies   int64  `json:"numreplies"`
	Pinned       bool   `json:"pinned"`
	Locked       bool   `json:"locked"`
}

type PostAuthor struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullname"`
}

type PostAttachment struct {
	Filename string `json:"filename"`
	FileURL  string `json:"url"`
	Filesize int64  `json:"filesize"`
}

type Post struct {
	ID           int64            `json:"id"`
	DiscussionID int64            `json:"discussionid"`
	ParentID     int64            `json:"parentid"`
	Subject      string           `json:"subject"`
	Message      string           `json:"message"`
	Author       PostAuthor       `json:"author"`
	TimeCreated  int64            `json:"timecreated"`
	TimeModified int64            `json:"timemodified"`
	Attachments  []PostAttachment `json:"attachments"`
}

// decodeStrict is json.Unmarshal that reports the function a payload came from.
func decodeStrict(function string, body []byte, v any) error {
	err := json.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("decode %s response: %w", function, err)
	}
	return nil
}
