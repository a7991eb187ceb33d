package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpstream(t *testing.T) {
	ok := upstreamRequestsTotal.WithLabelValues("pelican", "list_nodes", OutcomeSuccess)
	failed := upstreamRequestsTotal.WithLabelValues("pelican", "list_nodes", OutcomeFailure)
	beforeOK, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	ObserveUpstream("pelican", "list_nodes", nil)
	ObserveUpstream("pelican", "list_nodes", errors.New("timeout"))
	ObserveUpstream("pelican", "list_nodes", nil)

	assert.Equal(t, beforeOK+2, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestObserveSyncItem(t *testing.T) {
	c := syncItemsTotal.WithLabelValues("servers", OutcomeFailure)
	before := testutil.ToFloat64(c)

	ObserveSyncItem("servers", errors.New("404"))

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
