package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPush(t *testing.T) {
	var path, method, body string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := NewMetrics()
	m.observe(Summary{RunID: "run-1", Pulled: 10, Pushed: 10, Duration: time.Second}, false)
	require.NoError(t, m.Push(context.Background(), gw.URL))

	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/"+JobName+"/instance/"), path)
	assert.NotEmpty(t, body)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["road_relay_rows_pushed"])
	assert.True(t, names["road_relay_last_run_info"])
}
