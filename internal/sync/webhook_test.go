package sync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "webhook-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler(t *testing.T) {
	pushMain := `{"ref":"refs/heads/main","before":"abc","after":"0123456789abcdef","commits":[{"id":"0123456789abcdef","modified":["esp32/app.bin"]}]}`
	pushOther := `{"ref":"refs/heads/dev","before":"abc","after":"def"}`
	pushDocs := `{"ref":"refs/heads/main","after":"0123456789abcdef","commits":[{"id":"0123456789abcdef","modified":["README.md"]}]}`
	pushIndex := `{"ref":"refs/heads/main","after":"0123456789abcdef","commits":[{"id":"0123456789abcdef","modified":["chips.yaml"]}]}`
	pushForced := `{"ref":"refs/heads/main","before":"abc","after":"0123456789abcdef","commits":[]}`

	tests := []struct {
		name          string
		method        string
		event         string
		body          string
		signature     string
		wantStatus    int
		wantBody      string
		wantTriggered bool
	}{
		{
			name:          "push to tracked branch",
			method:        http.MethodPost,
			event:         "push",
			body:          pushMain,
			signature:     sign(pushMain),
			wantStatus:    http.StatusAccepted,
			wantBody:      `"accepted"`,
			wantTriggered: true,
		},
		{
			name:       "push without firmware changes",
			method:     http.MethodPost,
			event:      "push",
			body:       pushDocs,
			signature:  sign(pushDocs),
			wantStatus: http.StatusOK,
			wantBody:   "no firmware changes",
		},
		{
			name:          "push touching chip index",
			method:        http.MethodPost,
			event:         "push",
			body:          pushIndex,
			signature:     sign(pushIndex),
			wantStatus:    http.StatusAccepted,
			wantTriggered: true,
		},
		{
			name:          "push without commit list",
			method:        http.MethodPost,
			event:         "push",
			body:          pushForced,
			signature:     sign(pushForced),
			wantStatus:    http.StatusAccepted,
			wantTriggered: true,
		},
		{
			name:       "non-hex signature",
			method:     http.MethodPost,
			event:      "push",
			body:       pushMain,
			signature:  "sha256=zz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "push to other branch",
			method:     http.MethodPost,
			event:      "push",
			body:       pushOther,
			signature:  sign(pushOther),
			wantStatus: http.StatusOK,
			wantBody:   "different branch",
		},
		{
			name:       "ping event",
			method:     http.MethodPost,
			event:      "ping",
			body:       `{}`,
			signature:  sign(`{}`),
			wantStatus: http.StatusOK,
			wantBody:   "pong",
		},
		{
			name:       "non-push event",
			method:     http.MethodPost,
			event:      "issues",
			body:       `{}`,
			signature:  sign(`{}`),
			wantStatus: http.StatusOK,
			wantBody:   "not a push event",
		},
		{
			name:       "missing signature",
			method:     http.MethodPost,
			event:      "push",
			body:       pushMain,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong signature",
			method:     http.MethodPost,
			event:      "push",
			body:       pushMain,
			signature:  sign(pushOther),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong algorithm",
			method:     http.MethodPost,
			event:      "push",
			body:       pushMain,
			signature:  strings.Replace(sign(pushMain), "sha256", "sha1", 1),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed payload",
			method:     http.MethodPost,
			event:      "push",
			body:       `{"ref":`,
			signature:  sign(`{"ref":`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(&fakeStore{}, &fakeCatalog{})
			h := NewWebhookHandler(testSecret, m, "main", testLogger())

			req := httptest.NewRequest(tt.method, "/webhooks/github", strings.NewReader(tt.body))
			req.Header.Set("X-GitHub-Event", tt.event)
			req.Header.Set("X-GitHub-Delivery", "delivery-1")
			if tt.signature != "" {
				req.Header.Set("X-Hub-Signature-256", tt.signature)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
			if tt.wantTriggered {
				assert.Len(t, m.triggers, 1)
			} else {
				assert.Empty(t, m.triggers)
			}
		})
	}
}

func TestChangedChips(t *testing.T) {
	type commit = struct {
		ID       string   `json:"id"`
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	}

	tests := []struct {
		name      string
		commits   []commit
		wantChips []string
		wantKnown bool
	}{
		{
			name: "chip directories and index",
			commits: []commit{
				{Added: []string{"esp32c3/bootloader.bin"}, Modified: []string{"esp32/flasher_args.json"}},
				{Removed: []string{"esp32/old.bin", "README.md"}, Modified: []string{"chips.yaml"}},
			},
			wantChips: []string{"chips.yaml", "esp32", "esp32c3"},
			wantKnown: true,
		},
		{
			name:      "top level files only",
			commits:   []commit{{Modified: []string{"README.md", ".gitignore"}}},
			wantKnown: true,
		},
		{name: "no commits listed", wantKnown: false},
		{name: "truncated commit list", commits: make([]commit, maxPushCommits), wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := pushEvent{Commits: tt.commits}

			chips, known := event.changedChips()

			assert.Equal(t, tt.wantKnown, known)
			assert.Equal(t, tt.wantChips, chips)
		})
	}
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "01234567", shortSHA("0123456789abcdef"))
	assert.Equal(t, "abc", shortSHA("abc"))
	assert.Equal(t, "", shortSHA(""))
}
