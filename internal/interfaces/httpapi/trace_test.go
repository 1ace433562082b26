package httpapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestShouldCreateHTTPAPISpan(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "handler span", in: "httpapi.Handler.RunSyncGameJob", want: true},
		{name: "middleware span", in: "httpapi.RequestLogging", want: false},
		{name: "helper span", in: "httpapi.writeError", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shouldCreateHTTPAPISpan(tt.in)
			if got != tt.want {
				t.Fatalf("shouldCreateHTTPAPISpan(%q)=%v want=%v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStartSpan_UntracedContextGetsNoop(t *testing.T) {
	ctx := context.Background()

	got, span := startSpan(ctx, "httpapi.Handler.GetBudget", attribute.Int64("game.id", 1))
	defer span.End()

	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	// Helpers must tolerate an untraced context.
	annotateSpan(got, attribute.String("k", "v"))
	recordServerError(got, 500, errors.New("boom"))
}
