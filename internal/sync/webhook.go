package sync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/webflasher/firmware-server/internal/firmware"
)

const maxWebhookBody = 10 << 20

// GitHub lists at most this many commits in a push payload
const maxPushCommits = 20

// WebhookHandler turns GitHub push notifications for the firmware repository
// into mirror pulls
type WebhookHandler struct {
	secret  []byte
	trigger func()
	branch  string
	logger  *slog.Logger
}

type pushEvent struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commits []struct {
		ID       string   `json:"id"`
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

func NewWebhookHandler(secret string, manager *Manager, branch string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		secret:  []byte(secret),
		trigger: manager.Trigger,
		branch:  branch,
		logger:  logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		reply(w, http.StatusMethodNotAllowed, "rejected", "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		reply(w, http.StatusBadRequest, "rejected", "failed to read body")
		return
	}

	if !validSignature(h.secret, r.Header.Get("X-Hub-Signature-256"), body) {
		h.logger.Warn("rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
		reply(w, http.StatusUnauthorized, "rejected", "invalid signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	switch event {
	case "ping":
		reply(w, http.StatusOK, "pong", "")
		return
	case "push":
	default:
		reply(w, http.StatusOK, "ignored", "not a push event")
		return
	}

	var push pushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		h.logger.Warn("malformed push payload", "delivery_id", delivery, "error", err)
		reply(w, http.StatusBadRequest, "rejected", "invalid payload")
		return
	}

	if push.Ref != "refs/heads/"+h.branch {
		reply(w, http.StatusOK, "ignored", "different branch")
		return
	}

	chips, known := push.changedChips()
	if known && len(chips) == 0 {
		h.logger.Debug("push does not touch firmware", "delivery_id", delivery, "after", shortSHA(push.After))
		reply(w, http.StatusOK, "ignored", "no firmware changes")
		return
	}

	h.logger.Info("firmware push received",
		"delivery_id", delivery,
		"repository", push.Repository.FullName,
		"before", shortSHA(push.Before),
		"after", shortSHA(push.After),
		"chips", chips,
	)
	h.trigger()

	reply(w, http.StatusAccepted, "accepted", "")
}

// changedChips names the chip directories a push touched, with chips.yaml
// reported as is. known is false when the payload cannot be trusted to list
// every changed path.
func (e pushEvent) changedChips() (chips []string, known bool) {
	if len(e.Commits) == 0 || len(e.Commits) >= maxPushCommits {
		return nil, false
	}

	seen := make(map[string]bool)
	for _, c := range e.Commits {
		for _, list := range [][]string{c.Added, c.Removed, c.Modified} {
			for _, p := range list {
				name := p
				if p != firmware.ChipIndexFile {
					dir, _, nested := strings.Cut(p, "/")
					if !nested {
						continue
					}
					name = dir
				}
				if !seen[name] {
					seen[name] = true
					chips = append(chips, name)
				}
			}
		}
	}
	sort.Strings(chips)
	return chips, true
}

func validSignature(secret []byte, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func reply(w http.ResponseWriter, code int, status, reason string) {
	resp := map[string]string{"status": status}
	if reason != "" {
		resp["reason"] = reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
