// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
)

// recordTimeout bounds the decision-record write so a slow store can
// never hold up response delivery.
const recordTimeout = 2 * time.Second

// TryRecord appends a decision record best-effort: telemetry never
// fails the request. The write runs on a fresh context detached from
// the request so a cancelled caller still gets its record, and any
// error is logged and swallowed.
func TryRecord(recorder store.DecisionRecorder, rec store.DecisionRecord) {
	if recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := recorder.AppendDecision(ctx, rec); err != nil {
		slog.Warn("Failed to append decision record", "request_id", rec.RequestID, "error", err)
	}
}
