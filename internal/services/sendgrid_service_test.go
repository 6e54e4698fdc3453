package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridService_RequiresKey(t *testing.T) {
	_, err := NewSendGridService("", "")
	assert.Error(t, err)

	svc, err := NewSendGridService("SG.key", "")
	require.NoError(t, err)
	assert.Equal(t, "SendGrid", svc.Name())
}

func TestSendGridService_SendMail(t *testing.T) {
	var payload map[string]any
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc, err := NewSendGridService("SG.key", srv.URL)
	require.NoError(t, err)

	require.NoError(t, svc.SendMail(context.Background(), testMessage()))

	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "Your invoice", payload["subject"])

	from := payload["from"].(map[string]any)
	assert.Equal(t, "support@example.com", from["email"])
	assert.Equal(t, "Support Team", from["name"])

	headers := payload["headers"].(map[string]any)
	assert.Equal(t, "spring", headers["X-Campaign"])
}

func TestSendGridService_SendMail_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from"}]}`))
	}))
	defer srv.Close()

	svc, err := NewSendGridService("SG.key", srv.URL)
	require.NoError(t, err)

	err = svc.SendMail(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestBuildSendGridMail(t *testing.T) {
	m := buildSendGridMail(testMessage())
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "alice@example.org", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/html", m.Content[0].Type)
}
