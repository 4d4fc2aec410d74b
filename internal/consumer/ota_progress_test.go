package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOtaConsumer(otaJobs *fakeOtaJobsRepo) *MQTTConsumer {
	return NewMQTTConsumer(
		testConfig(), newFakeSubscriber(), nil,
		newFakeDevicesRepo(), newFakeAckCommandsRepo(), otaJobs,
		&fakeReadingsRepo{}, &fakeAlarmsRepo{}, nil,
		zap.NewNop(),
	)
}

func TestHandleOtaProgress_Downloading(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	err := c.handleOtaProgress(context.Background(), 7, []byte(`{"otaJobId":11,"status":"DOWNLOADING","progress":0.4}`))
	require.NoError(t, err)

	require.Len(t, otaJobs.calls, 1)
	assert.Equal(t, "downloading", otaJobs.calls[0].method)
	require.NotNil(t, otaJobs.calls[0].progress)
	assert.Equal(t, 0.4, *otaJobs.calls[0].progress)
}

func TestHandleOtaProgress_OutOfRangeProgressIgnored(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	// 越界进度：状态迁移照常，进度字段不写入
	for _, payload := range []string{
		`{"otaJobId":11,"status":"DOWNLOADING","progress":-0.1}`,
		`{"otaJobId":11,"status":"DOWNLOADING","progress":1.5}`,
	} {
		require.NoError(t, c.handleOtaProgress(context.Background(), 7, []byte(payload)))
	}

	require.Len(t, otaJobs.calls, 2)
	assert.Nil(t, otaJobs.calls[0].progress)
	assert.Nil(t, otaJobs.calls[1].progress)
}

func TestHandleOtaProgress_Applied(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	err := c.handleOtaProgress(context.Background(), 7, []byte(`{"otaJobId":11,"status":"APPLIED","progress":0.7}`))
	require.NoError(t, err)

	// APPLIED 无视上报进度，仓库层强制 1.0
	require.Len(t, otaJobs.calls, 1)
	assert.Equal(t, "applied", otaJobs.calls[0].method)
}

func TestHandleOtaProgress_FailedRecordsError(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	err := c.handleOtaProgress(context.Background(), 7, []byte(`{"otaJobId":11,"status":"FAILED","error":"checksum mismatch"}`))
	require.NoError(t, err)

	require.Len(t, otaJobs.calls, 1)
	assert.Equal(t, "failed", otaJobs.calls[0].method)
	assert.Equal(t, "checksum mismatch", otaJobs.calls[0].otaErr)
}

func TestHandleOtaProgress_UnknownStatusDropped(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	err := c.handleOtaProgress(context.Background(), 7, []byte(`{"otaJobId":11,"status":"REBOOTING"}`))
	require.NoError(t, err)
	assert.Empty(t, otaJobs.calls)
}

func TestHandleOtaProgress_MalformedDropped(t *testing.T) {
	otaJobs := &fakeOtaJobsRepo{}
	c := newOtaConsumer(otaJobs)

	require.NoError(t, c.handleOtaProgress(context.Background(), 7, []byte(`nope`)))
	require.NoError(t, c.handleOtaProgress(context.Background(), 7, []byte(`{"status":"APPLIED"}`)))
	assert.Empty(t, otaJobs.calls)
}
