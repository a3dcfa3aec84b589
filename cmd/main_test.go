package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := getLogLevel(tt.input); got != tt.want {
			t.Errorf("getLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel, err := withTimeout(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ctx.Deadline(); ok {
		t.Error("empty timeout should not set a deadline")
	}
	cancel()

	ctx, cancel, err = withTimeout(context.Background(), "2m")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > 2*time.Minute {
		t.Errorf("deadline = %v, %v", deadline, ok)
	}

	if _, _, err := withTimeout(context.Background(), "soon"); err == nil {
		t.Error("expected an error for an invalid timeout")
	}
}
