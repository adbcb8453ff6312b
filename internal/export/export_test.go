package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliradar/tracker/internal/chart"
	"github.com/heliradar/tracker/internal/fsutil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/security"
)

var trip = []model.Point{
	{TripID: "T/1", AgentID: "Jayant", Latitude: 0, Longitude: 1, Timestamp: "2024-01-01T10:00:30Z"},
	{TripID: "T/1", AgentID: "Jayant", Latitude: 0, Longitude: 0, Timestamp: "2024-01-01T10:00:00Z"},
}

func allowAll(string) error { return nil }

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"geojson", "png", "html"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(s), f)
	}
	_, err := ParseFormat("kml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTrackFormats(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	e := Exporter{FS: mem, Dir: "/exports", Validate: allowAll}

	path, err := e.Track("T/1", trip, GeoJSON)
	require.NoError(t, err)
	assert.Equal(t, "/exports/T_1.geojson", path)
	b, err := mem.ReadFile(path)
	require.NoError(t, err)
	var feature map[string]any
	require.NoError(t, json.Unmarshal(b, &feature))
	assert.Equal(t, "Feature", feature["type"])

	path, err = e.Track("T/1", trip, PNG)
	require.NoError(t, err)
	b, err = mem.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))

	path, err = e.Track("T/1", trip, HTML)
	require.NoError(t, err)
	b, err = mem.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "#10b981")

	_, err = e.Track("empty", nil, PNG)
	assert.ErrorIs(t, err, chart.ErrNoPoints)
	_, err = e.Track("T/1", trip, Format("kml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTracks(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	e := Exporter{FS: mem, Dir: "/exports", Validate: allowAll}

	second := []model.Point{{DeviceID: "HELI-2", Latitude: 1, Longitude: 1, Timestamp: "2024-01-01T10:00:00Z"}}
	paths, err := e.Tracks(map[string][]model.Point{"HELI-2": second, "T/1": trip}, GeoJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"/exports/HELI-2.geojson", "/exports/T_1.geojson"}, paths)
	assert.Equal(t, paths, mem.Files())

	paths, err = e.Tracks(map[string][]model.Point{"A": trip, "B": nil, "C": trip}, GeoJSON)
	assert.ErrorIs(t, err, chart.ErrNoPoints)
	assert.Equal(t, []string{"/exports/A.geojson"}, paths)
}

func TestTrackValidatesPath(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	blocked := errors.New("blocked")
	e := Exporter{FS: mem, Dir: "/exports", Validate: func(string) error { return blocked }}
	_, err := e.Track("T1", trip, GeoJSON)
	assert.ErrorIs(t, err, blocked)
	assert.Empty(t, mem.Files())
}

func TestTrackDefaultValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	e := Exporter{FS: fsutil.OSFileSystem{}, Dir: "out"}
	path, err := e.Track("T1", trip, GeoJSON)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	e.Dir = filepath.Join(string(filepath.Separator), "etc", "tracker-export")
	_, err = e.Track("T1", trip, GeoJSON)
	assert.ErrorIs(t, err, security.ErrPathEscape)
}
