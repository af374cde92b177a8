package jobs

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDShape(t *testing.T) {
	r := NewRegistry()
	id := r.NewID("scan")
	assert.Regexp(t, regexp.MustCompile(`^scan_\d{8}_\d{6}_[0-9a-f]{6}$`), id)
	assert.NotEqual(t, id, r.NewID("scan"))
}

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry()
	id := r.Create("scan", StatusRunning, &ScanParams{Countries: []string{"DE"}})

	j, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, j.ID)
	assert.Equal(t, "scan", j.Type)
	assert.Equal(t, StatusRunning, j.Status)
	require.NotNil(t, j.Params)
	assert.Equal(t, []string{"DE"}, j.Params.Countries)
	assert.False(t, j.StartedAt.IsZero())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	id := r.Create("scan", StatusRunning, nil)
	require.True(t, r.Update(id, func(j *Job) {
		j.Progress = map[string]float64{"ETG": 0.5}
	}))

	j, _ := r.Get(id)
	j.Progress["ETG"] = 0.0
	j.Status = StatusFailed

	again, _ := r.Get(id)
	assert.Equal(t, 0.5, again.Progress["ETG"])
	assert.Equal(t, StatusRunning, again.Status)
}

func TestUpdateBumpsTimestamp(t *testing.T) {
	r := NewRegistry()
	id := r.Create("scan", StatusRunning, nil)
	before, _ := r.Get(id)

	require.True(t, r.Update(id, func(j *Job) { j.Found = 10 }))
	after, _ := r.Get(id)
	assert.Equal(t, 10, after.Found)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

	assert.False(t, r.Update("missing", func(j *Job) {}))
}

func TestSetStatus(t *testing.T) {
	r := NewRegistry()
	id := r.Create("scan", StatusRunning, nil)
	require.True(t, r.SetStatus(id, StatusScanned))
	j, _ := r.Get(id)
	assert.Equal(t, StatusScanned, j.Status)
}

func TestListNewestFirst(t *testing.T) {
	r := NewRegistry()
	r.Create("scan", StatusRunning, nil)
	r.Create("scan", StatusRunning, nil)
	r.Create("export", StatusExported, nil)

	list := r.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i-1].StartedAt.Before(list[i].StartedAt))
	}
	assert.Equal(t, 3, r.Len())
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	r.Create("scan", StatusRunning, nil)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List())
}
