/*
Copyright 2025 The fleetform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wait

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPollImmediateSucceedsEventually(t *testing.T) {
	attempts := 0

	err := PollImmediate(context.Background(), time.Millisecond, time.Second, func() (error, error) {
		attempts++
		if attempts < 3 {
			return errors.New("not there yet"), nil
		}

		return nil, nil
	})
	if err != nil {
		t.Fatalf("expected condition to succeed, got %v", err)
	}

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestPollImmediateTerminalError(t *testing.T) {
	terminal := errors.New("boom")
	attempts := 0

	err := PollImmediate(context.Background(), time.Millisecond, time.Second, func() (error, error) {
		attempts++
		return nil, terminal
	})

	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}

	if attempts != 1 {
		t.Fatalf("terminal errors must abort the poll, got %d attempts", attempts)
	}
}

func TestPollTimeoutIncludesLastTransientError(t *testing.T) {
	err := PollImmediate(context.Background(), time.Millisecond, 20*time.Millisecond, func() (error, error) {
		return errors.New("still converging"), nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	if !strings.Contains(err.Error(), "still converging") {
		t.Fatalf("expected last transient error in message, got %q", err.Error())
	}
}

func TestPollHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Poll(ctx, time.Millisecond, time.Second, func() (error, error) {
		return errors.New("never"), nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
