package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/statemachine"

	"github.com/stretchr/testify/assert"
)

type fakeLive struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (f *fakeLive) Publish(topic string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("live-канал недоступен")
	}
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeLive) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakePush struct {
	mu    sync.Mutex
	calls int
	sent  []string
}

func (f *fakePush) Send(ctx context.Context, token string, n Notification) error {
	return nil
}

func (f *fakePush) SendMany(ctx context.Context, tokens []string, n Notification) Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, tokens...)
	return Report{Succeeded: len(tokens)}
}

func (f *fakePush) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDevices struct {
	tokens map[uint][]string
}

func (f *fakeDevices) DeviceTokens(patientID uint) ([]string, error) {
	return f.tokens[patientID], nil
}

func event(status models.PatientStatus) statemachine.StatusChanged {
	return statemachine.StatusChanged{
		PatientID: 7,
		QueueID:   3,
		OldStatus: models.StatusWaiting,
		NewStatus: status,
		Position:  4,
		Timestamp: time.Now(),
	}
}

func TestMessageTableTotal(t *testing.T) {
	wantTitles := map[models.PatientStatus]string{
		models.StatusWaiting:   "Queue Position Updated",
		models.StatusNotified:  "Get Ready! Your Turn is Coming Up",
		models.StatusServing:   "It's Your Turn Now!",
		models.StatusServed:    "Thank You for Your Visit",
		models.StatusCancelled: "Queue Status Update",
	}

	for _, s := range models.AllStatuses {
		title, body := Message(s, 4, "Терапевт")
		assert.Equal(t, wantTitles[s], title, "заголовок для статуса %s", s)
		assert.NotEmpty(t, body, "текст для статуса %s", s)
	}

	_, body := Message(models.StatusWaiting, 4, "Терапевт")
	assert.Equal(t, "You are now in position 4 in the Терапевт queue.", body)
}

func TestDispatchPublishesToPatientAndQueueTopics(t *testing.T) {
	live := &fakeLive{}
	push := &fakePush{}
	d := NewDispatcher(live, push, &fakeDevices{tokens: map[uint][]string{}})

	d.DispatchStatusChanged(event(models.StatusNotified), "Терапевт")

	assert.Contains(t, live.published(), "patient/7")
	assert.Contains(t, live.published(), "queue/3")
}

func TestPushSkippedWithoutDevices(t *testing.T) {
	push := &fakePush{}
	d := NewDispatcher(&fakeLive{}, push, &fakeDevices{tokens: map[uint][]string{}})

	// Отсутствие устройств — не ошибка и не повод дергать push-канал.
	d.pushToDevices(event(models.StatusServing), "Терапевт")
	assert.Equal(t, 0, push.callCount())
}

func TestPushSentToAllDevices(t *testing.T) {
	push := &fakePush{}
	devices := &fakeDevices{tokens: map[uint][]string{7: {"tok-a", "tok-b"}}}
	d := NewDispatcher(&fakeLive{}, push, devices)

	d.pushToDevices(event(models.StatusServing), "Терапевт")

	assert.Equal(t, 1, push.callCount())
	assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, push.sent)
}

func TestLiveFailureDoesNotBlockPush(t *testing.T) {
	push := &fakePush{}
	devices := &fakeDevices{tokens: map[uint][]string{7: {"tok-a"}}}
	d := NewDispatcher(&fakeLive{fail: true}, push, devices)

	// Сбой live-канала проглатывается, push всё равно уходит.
	d.DispatchStatusChanged(event(models.StatusServing), "Терапевт")

	assert.Eventually(t, func() bool {
		return push.callCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastQueueUpdate(t *testing.T) {
	live := &fakeLive{}
	d := NewDispatcher(live, &fakePush{}, &fakeDevices{})

	d.BroadcastQueueUpdate(3)
	assert.Equal(t, []string{"queue/3"}, live.published())
}

func TestFCMPartialFailure(t *testing.T) {
	// Один из двух токенов отклоняется: доставка остальным продолжается,
	// итог отражает счётчики, ошибки наружу не выходят.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To string `json:"to"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.To == "bad-token" {
			w.Write([]byte(`{"success":0,"failure":1}`))
			return
		}
		w.Write([]byte(`{"success":1,"failure":0}`))
	}))
	defer srv.Close()

	f := NewFCMChannel("test-key")
	f.Endpoint = srv.URL

	report := f.SendMany(context.Background(), []string{"good-token", "bad-token"}, Notification{
		Title: "It's Your Turn Now!",
		Body:  "It is your turn now! Please proceed to the service desk.",
	})

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}
