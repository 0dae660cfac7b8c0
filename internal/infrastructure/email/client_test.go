package email

import (
	"context"
	"testing"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceFallsBackToLog(t *testing.T) {
	prev := config.ResendAPIKey
	config.ResendAPIKey = ""
	t.Cleanup(func() { config.ResendAPIKey = prev })

	svc := NewService(logging.NewNopLogger())
	_, ok := svc.(*LogService)
	assert.True(t, ok)
}

func TestLogServiceRendersRecap(t *testing.T) {
	svc := NewLogService(logging.NewNopLogger())
	err := svc.SendLaunchRecap(context.Background(), "owner@example.com", templates.LaunchRecapProps{
		LaunchTitle: "Spring", Revenue: "900.00", Students: 6,
	})
	require.NoError(t, err)

	require.Len(t, svc.Sent(), 1)
	msg := svc.Sent()[0]
	assert.Equal(t, "owner@example.com", msg.To)
	assert.Equal(t, "Launch recap: Spring", msg.Subject)
	assert.Contains(t, msg.HTML, "900.00")
}
