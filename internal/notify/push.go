package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// FCMChannel отправляет push-уведомления через HTTP API Firebase Cloud Messaging.
// Токены устройств приходят от клиентских приложений при регистрации устройства.
type FCMChannel struct {
	Endpoint  string
	ServerKey string
	Client    *http.Client
}

const fcmEndpoint = "https://fcm.googleapis.com/fcm/send"

func NewFCMChannel(serverKey string) *FCMChannel {
	return &FCMChannel{
		Endpoint:  fcmEndpoint,
		ServerKey: serverKey,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Priority     string            `json:"priority"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Send отправляет уведомление на одно устройство. Одна повторная попытка
// при сетевой ошибке, после чего ошибка возвращается вызывающему.
func (f *FCMChannel) Send(ctx context.Context, token string, n Notification) error {
	err := f.send(ctx, token, n)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return f.send(ctx, token, n)
}

func (f *FCMChannel) send(ctx context.Context, token string, n Notification) error {
	payload, err := json.Marshal(fcmRequest{
		To: token,
		Notification: fcmNotification{
			Title: n.Title,
			Body:  n.Body,
			Sound: "default",
		},
		Data:     n.Data,
		Priority: "high",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.ServerKey)

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM ответил статусом %d", resp.StatusCode)
	}

	var result fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if result.Failure > 0 {
		return fmt.Errorf("FCM отклонил доставку на токен")
	}
	return nil
}

// SendMany отправляет уведомление на каждое устройство независимо:
// сбой на одном токене не прерывает доставку остальным.
func (f *FCMChannel) SendMany(ctx context.Context, tokens []string, n Notification) Report {
	var report Report
	for _, token := range tokens {
		if err := f.Send(ctx, token, n); err != nil {
			log.Printf("Ошибка push-доставки на токен %s: %v", token, err)
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	return report
}

// LogChannel — заглушка push-канала для разработки и окружений без FCM-ключа:
// пишет уведомления в лог вместо реальной отправки.
type LogChannel struct{}

func NewLogChannel() *LogChannel {
	return &LogChannel{}
}

func (l *LogChannel) Send(ctx context.Context, token string, n Notification) error {
	log.Printf("push [%s]: %s — %s", token, n.Title, n.Body)
	return nil
}

func (l *LogChannel) SendMany(ctx context.Context, tokens []string, n Notification) Report {
	for _, token := range tokens {
		_ = l.Send(ctx, token, n)
	}
	return Report{Succeeded: len(tokens)}
}
