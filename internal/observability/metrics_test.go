package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/yungbote/learnhub/internal/pkg/apierr"
)

func TestObserveOpLabelsByCode(t *testing.T) {
	before := testutil.ToFloat64(opsTotal.WithLabelValues("catalog", "ListCourses", "backend_unavailable"))
	ObserveOp("catalog", "ListCourses", time.Now(), apierr.New(apierr.CodeBackendUnavailable, "op", errors.New("down")))
	after := testutil.ToFloat64(opsTotal.WithLabelValues("catalog", "ListCourses", "backend_unavailable"))
	assert.Equal(t, before+1, after)

	okBefore := testutil.ToFloat64(opsTotal.WithLabelValues("catalog", "ListCourses", "ok"))
	ObserveOp("catalog", "ListCourses", time.Now(), nil)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(opsTotal.WithLabelValues("catalog", "ListCourses", "ok")))
}

func TestStaleDiscarded(t *testing.T) {
	before := testutil.ToFloat64(staleResponses.WithLabelValues("reviews"))
	StaleDiscarded("reviews")
	assert.Equal(t, before+1, testutil.ToFloat64(staleResponses.WithLabelValues("reviews")))
}
