package bus

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/engine"
	"github.com/llehouerou/notifyd/internal/errmsg"
	"github.com/llehouerou/notifyd/internal/notify"
)

func TestHistoryRecords(t *testing.T) {
	created := time.Unix(1700000000, 0)
	ns := []notify.Notification{
		{ID: 7, AppName: "mail", Summary: "New mail", Body: "hello", AppIcon: "mail-unread", CreatedAt: created},
		{ID: 3, AppName: "chat", Summary: "Ping", CreatedAt: created.Add(time.Minute)},
	}

	got := historyRecords(ns)
	want := []HistoryRecord{
		{ID: 7, AppName: "mail", Summary: "New mail", Body: "hello", AppIcon: "mail-unread", Timestamp: 1700000000},
		{ID: 3, AppName: "chat", Summary: "Ping", Timestamp: 1700000060},
	}
	assert.Equal(t, want, got)
}

func TestHistoryRecordSignature(t *testing.T) {
	assert.Equal(t, "a(usssx)", dbus.SignatureOf([]HistoryRecord{}).String())
	assert.Equal(t, "a(ssau)", dbus.SignatureOf([]GroupRecord{}).String())
}

func TestHistoryJSON(t *testing.T) {
	progress := 40
	n := notify.Notification{
		ID:      9,
		AppName: "builder",
		Summary: "Build",
		Body:    "see https://ci.example.com",
		Actions: []notify.Action{{ID: "default", Label: "Open"}},
		Links:   []notify.Link{{URL: "https://ci.example.com", Start: 4, End: 26}},
		Hints: notify.Hints{
			Urgency:  notify.UrgencyCritical,
			Category: "transfer",
			Progress: &progress,
			Image: &notify.Image{
				Kind: notify.ImageRaw,
				Raw:  &notify.RawImage{Width: 2, Height: 1, Pix: make([]byte, 8)},
			},
		},
	}

	docs, err := historyJSON([]notify.Notification{n})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(docs[0]), &doc))
	assert.InDelta(t, 9, doc["id"], 0)
	assert.Equal(t, "critical", doc["urgency"])
	assert.Equal(t, "transfer", doc["category"])
	assert.InDelta(t, 40, doc["progress"], 0)
	assert.Equal(t, map[string]any{"kind": "raw", "width": 2.0, "height": 1.0}, doc["image"])
	assert.Equal(t, []any{map[string]any{"id": "default", "label": "Open"}}, doc["actions"])
	assert.NotContains(t, docs[0], "pix", "pixel data stays out of the export")
}

func TestGroupRecords(t *testing.T) {
	gs := []notify.Group{
		{Key: "email", Name: "Email", Notifications: []notify.Notification{{ID: 4}, {ID: 2}}},
		{Key: "im", Name: "Messages", Notifications: []notify.Notification{{ID: 5}}},
	}
	got := groupRecords(gs)
	want := []GroupRecord{
		{Key: "email", Label: "Email (2)", IDs: []uint32{4, 2}},
		{Key: "im", Label: "Messages", IDs: []uint32{5}},
	}
	assert.Equal(t, want, got)
}

func TestToDBusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", engine.ErrRateLimited, ErrorRateLimited},
		{"invalid argument", fmt.Errorf("timeout: %w", engine.ErrInvalidArgument), ErrorInvalidArgs},
		{"not found", engine.ErrNotFound, ErrorNotFound},
		{"other", engine.ErrStopped, ErrorFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDBusError(errmsg.OpNotify, tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
			require.Len(t, got.Body, 1)
			assert.Equal(t, errmsg.Format(errmsg.OpNotify, tt.err), got.Body[0])
		})
	}

	assert.Nil(t, toDBusError(errmsg.OpClose, nil))
}
