// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/leads", "201"))
	RecordAPIRequest("POST", "/api/leads", "201", 15*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/leads", "201"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("gauge = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("gauge = %v, want %v", got, before)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	errsBefore := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("file", "create_lead"))

	RecordStoreOperation("file", "create_lead", time.Now(), nil)
	if got := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("file", "create_lead")); got != errsBefore {
		t.Errorf("success should not count an error, got %v", got-errsBefore)
	}

	RecordStoreOperation("file", "create_lead", time.Now(), errors.New("disk full"))
	if got := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("file", "create_lead")); got != errsBefore+1 {
		t.Errorf("failure should count one error, got %v", got-errsBefore)
	}
}
