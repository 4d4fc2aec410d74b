package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
)

// sweepCommandsFake 记录扫描与级联调用的命令台账桩
type sweepCommandsFake struct {
	mu             sync.Mutex
	sweepCutoffs   []time.Time
	sweepReturn    int64
	sweepErr       error
	cascaded       []int64
	cascadeApplied bool
}

func (r *sweepCommandsFake) Create(ctx context.Context, deviceID int64, cmdType string, payload json.RawMessage, source string, requestedBy *int64, correlationID string) (*models.Command, error) {
	return nil, errors.New("not implemented")
}

func (r *sweepCommandsFake) GetByID(ctx context.Context, id int64) (*models.Command, error) {
	return nil, errors.New("not implemented")
}

func (r *sweepCommandsFake) MarkSent(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (r *sweepCommandsFake) MarkFailed(ctx context.Context, id int64, diag string) (bool, error) {
	return false, nil
}

func (r *sweepCommandsFake) ApplyAck(ctx context.Context, id int64, status string, ackErr string) (bool, error) {
	return false, nil
}

func (r *sweepCommandsFake) SweepTimeouts(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepCutoffs = append(r.sweepCutoffs, cutoff)
	return r.sweepReturn, r.sweepErr
}

func (r *sweepCommandsFake) CascadeTimeout(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cascaded = append(r.cascaded, id)
	return r.cascadeApplied, nil
}

type sweepDevicesFake struct {
	mu         sync.Mutex
	thresholds []time.Duration
	sweepErr   error
}

func (r *sweepDevicesFake) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	return nil, errors.New("not implemented")
}

func (r *sweepDevicesFake) TouchHeartbeat(ctx context.Context, id int64, deviceKey string, mqttClientID string) (bool, error) {
	return false, nil
}

func (r *sweepDevicesFake) MarkOnline(ctx context.Context, id int64) error { return nil }

func (r *sweepDevicesFake) SweepOffline(ctx context.Context, threshold time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds = append(r.thresholds, threshold)
	return 1, r.sweepErr
}

func (r *sweepDevicesFake) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.thresholds)
}

type sweepOtaFake struct {
	commandIDs []int64
}

func (r *sweepOtaFake) CreateWithCommand(ctx context.Context, deviceID int64, release *models.FirmwareRelease, source string, requestedBy *int64, correlationID string) (*models.OtaJob, *models.Command, error) {
	return nil, nil, errors.New("not implemented")
}

func (r *sweepOtaFake) GetByID(ctx context.Context, id int64) (*models.OtaJob, error) {
	return nil, errors.New("not implemented")
}

func (r *sweepOtaFake) ListByDevice(ctx context.Context, deviceID int64) ([]models.OtaJob, error) {
	return nil, nil
}

func (r *sweepOtaFake) MarkSent(ctx context.Context, id int64) error { return nil }

func (r *sweepOtaFake) MarkFailed(ctx context.Context, id int64, otaErr string) error { return nil }

func (r *sweepOtaFake) SetDownloading(ctx context.Context, id int64, p *float64) error { return nil }

func (r *sweepOtaFake) SetApplied(ctx context.Context, id int64) error { return nil }

func (r *sweepOtaFake) SetFailed(ctx context.Context, id int64, otaErr string) error { return nil }

func (r *sweepOtaFake) SweepTimeouts(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return r.commandIDs, nil
}

// ============================================
// 扫描循环
// ============================================

func TestSweeper_TicksUntilCancelled(t *testing.T) {
	devices := &sweepDevicesFake{}
	s := NewOfflineSweeper(devices, 5*time.Second, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return devices.calls() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	devices.mu.Lock()
	defer devices.mu.Unlock()
	assert.Equal(t, 5*time.Second, devices.thresholds[0])
}

func TestSweeper_TickErrorDoesNotKillLoop(t *testing.T) {
	devices := &sweepDevicesFake{sweepErr: errors.New("store unavailable")}
	s := NewOfflineSweeper(devices, 5*time.Second, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	// 出错的tick之后循环继续
	require.Eventually(t, func() bool { return devices.calls() >= 3 }, time.Second, 5*time.Millisecond)
}

// ============================================
// 各扫描器的tick语义
// ============================================

func TestCommandSweeper_CutoffFromAckTimeout(t *testing.T) {
	commands := &sweepCommandsFake{sweepReturn: 2}
	s := NewCommandSweeper(commands, 5*time.Second, time.Hour, zap.NewNop())

	before := time.Now().Add(-5 * time.Second)
	require.NoError(t, s.tick(context.Background()))
	after := time.Now().Add(-5 * time.Second)

	require.Len(t, commands.sweepCutoffs, 1)
	cutoff := commands.sweepCutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestOtaSweeper_CascadesToLinkedCommands(t *testing.T) {
	otaJobs := &sweepOtaFake{commandIDs: []int64{42, 57}}
	commands := &sweepCommandsFake{cascadeApplied: true}
	s := NewOtaSweeper(otaJobs, commands, 10*time.Minute, time.Hour, zap.NewNop())

	require.NoError(t, s.tick(context.Background()))
	assert.Equal(t, []int64{42, 57}, commands.cascaded)
}

func TestOtaSweeper_TerminalCommandCascadeIgnored(t *testing.T) {
	otaJobs := &sweepOtaFake{commandIDs: []int64{42}}
	commands := &sweepCommandsFake{cascadeApplied: false}
	s := NewOtaSweeper(otaJobs, commands, 10*time.Minute, time.Hour, zap.NewNop())

	// 命令已终态：级联零行，不是错误
	require.NoError(t, s.tick(context.Background()))
	assert.Equal(t, []int64{42}, commands.cascaded)
}
