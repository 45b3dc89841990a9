package pluginfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemID(t *testing.T) {
	testCases := []struct {
		name     string
		filepath string
		fileurl  string
		id       int64
		ok       bool
	}{
		{
			name:     "chapter filepath",
			filepath: "/3/",
			fileurl:  "https://moodle.example/webservice/pluginfile.php/99/mod_book/chapter/3/index.html",
			id:       3,
			ok:       true,
		},
		{
			name:     "fallback to webservice url",
			filepath: "/",
			fileurl:  "https://moodle.example/webservice/pluginfile.php/482/mod_page/content/7/index.html",
			id:       482,
			ok:       true,
		},
		{
			name:     "nested filepath",
			filepath: "/images/12/",
			fileurl:  "",
			id:       12,
			ok:       true,
		},
		{
			name:     "integer before trailing directories",
			filepath: "/12/images/",
			fileurl:  "https://moodle.example/webservice/pluginfile.php/99/mod_book/chapter/12/images/a.png",
			id:       12,
			ok:       true,
		},
		{
			name:     "last integer segment wins",
			filepath: "/4/12/images/",
			fileurl:  "",
			id:       12,
			ok:       true,
		},
		{
			name:     "non webservice url",
			filepath: "/docs/",
			fileurl:  "https://moodle.example/pluginfile.php/482/mod_page/content/7/index.html",
			ok:       false,
		},
		{
			name: "neither",
			ok:   false,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			id, ok := ItemID(test.filepath, test.fileurl)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.id, id)
		})
	}
}

func TestResourceID(t *testing.T) {
	id, ok := ResourceID("https://host/webservice/pluginfile.php/12345/mod_resource/content/0/x.pdf")
	require.True(t, ok)
	require.Equal(t, "12345", id)

	id, ok = ResourceID("https://host/pluginfile.php/77/block_html/content/logo.png?forcedownload=1")
	require.True(t, ok)
	require.Equal(t, "77", id)

	_, ok = ResourceID("https://host/mod/page/view.php?id=4")
	require.False(t, ok)

	_, ok = ResourceID("https://host/pluginfile.php")
	require.False(t, ok)
}

func TestFilename(t *testing.T) {
	require.Equal(t, "diagram.png", Filename("https://host/webservice/pluginfile.php/1/mod_book/chapter/3/diagram.png?forcedownload=1"))
	require.Equal(t, "index.html", Filename("https://host/webservice/pluginfile.php/1/mod_page/content/7/index.html"))
	require.Equal(t, "my%20file.pdf", Filename("https://host/pluginfile.php/1/mod_resource/content/0/my%20file.pdf"))
	require.Equal(t, "", Filename(""))
}
