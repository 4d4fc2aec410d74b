package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	commonmqtt "github.com/josapratama/smarthome-backend-sub000/common/mqtt"
	"github.com/josapratama/smarthome-backend-sub000/internal/config"
	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"
)

// 测试桩：内存实现各仓库接口，无需真实存储与broker

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]commonmqtt.MessageHandler
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]commonmqtt.MessageHandler)}
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = handler
	return nil
}

func (s *fakeSubscriber) Unsubscribe(topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.handlers, t)
	}
	return nil
}

// deliver 模拟broker向订阅投递一条消息
func (s *fakeSubscriber) deliver(subscription, topic string, payload []byte) error {
	s.mu.Lock()
	handler := s.handlers[subscription]
	s.mu.Unlock()
	if handler == nil {
		return errors.New("no subscription: " + subscription)
	}
	return handler(topic, payload)
}

type fakeDevicesRepo struct {
	devices     map[int64]*models.Device
	onlineMarks []int64
	heartbeats  []int64
}

func newFakeDevicesRepo(devices ...*models.Device) *fakeDevicesRepo {
	m := make(map[int64]*models.Device)
	for _, d := range devices {
		m[d.ID] = d
	}
	return &fakeDevicesRepo{devices: m}
}

func (r *fakeDevicesRepo) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	d, ok := r.devices[id]
	if !ok || d.DeletedAt != nil {
		return nil, repository.ErrDeviceNotFound
	}
	return d, nil
}

func (r *fakeDevicesRepo) TouchHeartbeat(ctx context.Context, id int64, deviceKey string, mqttClientID string) (bool, error) {
	d, ok := r.devices[id]
	if !ok || d.DeviceKey != deviceKey {
		return false, nil
	}
	now := time.Now()
	d.IsOnline = true
	d.LastSeenAt = &now
	if mqttClientID != "" {
		d.MqttClientID = &mqttClientID
	}
	r.heartbeats = append(r.heartbeats, id)
	return true, nil
}

func (r *fakeDevicesRepo) MarkOnline(ctx context.Context, id int64) error {
	if d, ok := r.devices[id]; ok {
		now := time.Now()
		d.IsOnline = true
		d.LastSeenAt = &now
	}
	r.onlineMarks = append(r.onlineMarks, id)
	return nil
}

func (r *fakeDevicesRepo) SweepOffline(ctx context.Context, threshold time.Duration) (int64, error) {
	return 0, nil
}

type fakeAckCommandsRepo struct {
	commands map[int64]*models.Command
}

func newFakeAckCommandsRepo(cmds ...*models.Command) *fakeAckCommandsRepo {
	m := make(map[int64]*models.Command)
	for _, c := range cmds {
		m[c.ID] = c
	}
	return &fakeAckCommandsRepo{commands: m}
}

func (r *fakeAckCommandsRepo) Create(ctx context.Context, deviceID int64, cmdType string, payload json.RawMessage, source string, requestedBy *int64, correlationID string) (*models.Command, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeAckCommandsRepo) GetByID(ctx context.Context, id int64) (*models.Command, error) {
	c, ok := r.commands[id]
	if !ok {
		return nil, repository.ErrCommandNotFound
	}
	return c, nil
}

func (r *fakeAckCommandsRepo) MarkSent(ctx context.Context, id int64) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *fakeAckCommandsRepo) MarkFailed(ctx context.Context, id int64, diag string) (bool, error) {
	return false, errors.New("not implemented")
}

// ApplyAck 复刻条件更新语义：仅 SENT/TIMEOUT 可应用
func (r *fakeAckCommandsRepo) ApplyAck(ctx context.Context, id int64, status string, ackErr string) (bool, error) {
	c, ok := r.commands[id]
	if !ok {
		return false, nil
	}
	if c.Status != models.CommandStatusSent && c.Status != models.CommandStatusTimeout {
		return false, nil
	}
	now := time.Now()
	c.Status = status
	c.AckedAt = &now
	if ackErr != "" {
		c.LastError = &ackErr
	}
	return true, nil
}

func (r *fakeAckCommandsRepo) SweepTimeouts(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeAckCommandsRepo) CascadeTimeout(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

type otaCall struct {
	method   string
	jobID    int64
	progress *float64
	otaErr   string
}

type fakeOtaJobsRepo struct {
	calls []otaCall
}

func (r *fakeOtaJobsRepo) CreateWithCommand(ctx context.Context, deviceID int64, release *models.FirmwareRelease, source string, requestedBy *int64, correlationID string) (*models.OtaJob, *models.Command, error) {
	return nil, nil, errors.New("not implemented")
}

func (r *fakeOtaJobsRepo) GetByID(ctx context.Context, id int64) (*models.OtaJob, error) {
	return nil, repository.ErrOtaJobNotFound
}

func (r *fakeOtaJobsRepo) ListByDevice(ctx context.Context, deviceID int64) ([]models.OtaJob, error) {
	return nil, nil
}

func (r *fakeOtaJobsRepo) MarkSent(ctx context.Context, id int64) error { return nil }

func (r *fakeOtaJobsRepo) MarkFailed(ctx context.Context, id int64, otaErr string) error {
	return nil
}

func (r *fakeOtaJobsRepo) SetDownloading(ctx context.Context, id int64, progress *float64) error {
	r.calls = append(r.calls, otaCall{method: "downloading", jobID: id, progress: progress})
	return nil
}

func (r *fakeOtaJobsRepo) SetApplied(ctx context.Context, id int64) error {
	r.calls = append(r.calls, otaCall{method: "applied", jobID: id})
	return nil
}

func (r *fakeOtaJobsRepo) SetFailed(ctx context.Context, id int64, otaErr string) error {
	r.calls = append(r.calls, otaCall{method: "failed", jobID: id, otaErr: otaErr})
	return nil
}

func (r *fakeOtaJobsRepo) SweepTimeouts(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return nil, nil
}

type fakeReadingsRepo struct {
	readings []*models.SensorReading
}

func (r *fakeReadingsRepo) Insert(ctx context.Context, reading *models.SensorReading) (int64, error) {
	r.readings = append(r.readings, reading)
	return int64(len(r.readings)), nil
}

type fakeAlarmsRepo struct {
	alarms []*models.Alarm
}

func (r *fakeAlarmsRepo) ExistsRecent(ctx context.Context, deviceID int64, alarmType, source string, window time.Duration) (bool, error) {
	for _, a := range r.alarms {
		if a.DeviceID == deviceID && a.Type == alarmType && a.Source == source &&
			time.Since(a.TriggeredAt) < window {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlarmsRepo) Create(ctx context.Context, alarm *models.Alarm) (int64, error) {
	r.alarms = append(r.alarms, alarm)
	return int64(len(r.alarms)), nil
}

type fakeNotifier struct {
	notified []*models.Alarm
}

func (n *fakeNotifier) Notify(ctx context.Context, alarm *models.Alarm) {
	n.notified = append(n.notified, alarm)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.MQTT.QoS = 1
	cfg.Alarm.DedupWindow = 60 * time.Second
	cfg.Alarm.GasPpmThreshold = 500
	cfg.Alarm.BinLevelThreshold = 80
	cfg.Telemetry.Stream = "telemetry:data:stream"
	return cfg
}
