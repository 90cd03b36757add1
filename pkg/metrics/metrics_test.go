package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEventIngested(t *testing.T) {
	before := testutil.ToFloat64(EventsIngestedTotal.WithLabelValues("customer_service", "processed"))
	RecordEventIngested("customer_service", "processed")
	after := testutil.ToFloat64(EventsIngestedTotal.WithLabelValues("customer_service", "processed"))
	assert.Equal(t, before+1, after)
}

func TestRecordPrediction(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("high", "v1.0.0"))
	RecordPrediction("high", "v1.0.0", 0.012)
	after := testutil.ToFloat64(PredictionsTotal.WithLabelValues("high", "v1.0.0"))
	assert.Equal(t, before+1, after)
}

func TestRecordQualityCheck(t *testing.T) {
	before := testutil.ToFloat64(QualityChecksTotal.WithLabelValues("billing", "completeness", "fail"))
	RecordQualityCheck("billing", "completeness", "fail")
	after := testutil.ToFloat64(QualityChecksTotal.WithLabelValues("billing", "completeness", "fail"))
	assert.Equal(t, before+1, after)
}

func TestRecordActionCreated(t *testing.T) {
	before := testutil.ToFloat64(ActionsCreatedTotal.WithLabelValues("discount_offer"))
	RecordActionCreated("discount_offer")
	after := testutil.ToFloat64(ActionsCreatedTotal.WithLabelValues("discount_offer"))
	assert.Equal(t, before+1, after)
}
