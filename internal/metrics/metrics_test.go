// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.Checked("rutor")
	r.Checked("rutor")
	r.Checked("litrcc")
	r.Outcome("rutor", "updated")
	r.Outcome("rutor", "unchanged")
	r.Outcome("rutor", "unchanged")
	r.Removed(3)
	r.Removed(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.checked.WithLabelValues("rutor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checked.WithLabelValues("litrcc")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("rutor", "unchanged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.removed))

	started := time.Unix(1_700_000_000, 0)
	r.Finish(started, started.Add(90*time.Second), false)
	assert.Equal(t, 90.0, testutil.ToFloat64(r.duration))
	assert.Equal(t, float64(started.Add(90*time.Second).Unix()), testutil.ToFloat64(r.lastRun))
	assert.Zero(t, testutil.ToFloat64(r.runFailed))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Outcome("kinozal", "skipped")

	path := filepath.Join(t.TempDir(), "tsup.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tsup_item_outcomes_total{outcome="skipped",source="kinozal"} 1`)
}

func TestRecorder_WriteTextfileError(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "tsup.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not write metrics")
}
