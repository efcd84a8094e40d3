// Copyright 2025 OpenCivic Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"context"
	"time"
)

// retry runs op under the router's retry budget. The delay doubles after
// each failed attempt; cancellation is honored both before an attempt and
// during the backoff sleep. Returns the last attempt's error when the
// budget is exhausted.
func (r *Router) retry(ctx context.Context, op func() error) error {
	if r.maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	delay := r.retryDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastErr = op(); lastErr == nil {
			if attempt > 1 {
				r.logger.Debug("backend call recovered", "attempt", attempt)
			}
			return nil
		}
		r.logger.Debug("backend call failed",
			"attempt", attempt, "max_attempts", r.maxAttempts, "err", lastErr)

		if attempt == r.maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
